package store

// Tab is one registered tab header.
type Tab struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// TabRegistry collects the tabs that register with one tabs container
// during a render pass. Registration order is header order.
type TabRegistry struct {
	tabs      []Tab
	requested string
}

// NewTabRegistry returns a registry that prefers the requested tab id when
// it registers, and otherwise falls back to the first tab.
func NewTabRegistry(requested string) *TabRegistry {
	return &TabRegistry{requested: requested}
}

// Register adds a tab, or relabels it if the id is already present.
func (r *TabRegistry) Register(id, label string) {
	for i := range r.tabs {
		if r.tabs[i].ID == id {
			r.tabs[i].Label = label
			return
		}
	}
	r.tabs = append(r.tabs, Tab{ID: id, Label: label})
}

func (r *TabRegistry) Unregister(id string) {
	for i := range r.tabs {
		if r.tabs[i].ID == id {
			r.tabs = append(r.tabs[:i], r.tabs[i+1:]...)
			return
		}
	}
}

func (r *TabRegistry) Tabs() []Tab {
	out := make([]Tab, len(r.tabs))
	copy(out, r.tabs)
	return out
}

// Active resolves the active tab id: the requested one if registered,
// else the first registered tab, else "".
func (r *TabRegistry) Active() string {
	for _, t := range r.tabs {
		if t.ID == r.requested {
			return t.ID
		}
	}
	if len(r.tabs) > 0 {
		return r.tabs[0].ID
	}
	return ""
}

// SetActive requests id and reports whether it is registered.
func (r *TabRegistry) SetActive(id string) bool {
	r.requested = id
	for _, t := range r.tabs {
		if t.ID == id {
			return true
		}
	}
	return false
}

func (r *TabRegistry) IsActive(id string) bool {
	return id != "" && r.Active() == id
}
