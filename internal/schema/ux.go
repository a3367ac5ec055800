package schema

// Display controls whether a node renders, and with or without a wrapper.
type Display string

const (
	DisplayVisible     Display = "visible"
	DisplayHidden      Display = "hidden"
	DisplayPassthrough Display = "passthrough"
)

// Effective resolves an unset display to hidden.
func (d Display) Effective() Display {
	switch d {
	case DisplayVisible, DisplayPassthrough:
		return d
	default:
		return DisplayHidden
	}
}

// InputType names the editable widget for a field.
type InputType string

const (
	InputText     InputType = "text"
	InputTextarea InputType = "textarea"
	InputNumber   InputType = "number"
	InputSlider   InputType = "slider"
	InputSelect   InputType = "select"
	InputCheckbox InputType = "checkbox"
	InputColor    InputType = "color"
)

// RuleType selects how a control rule reacts to a field change.
type RuleType string

const (
	RuleEnum  RuleType = "enum"
	RuleValue RuleType = "value"
)

// ControlRule is attached to a select field and keyed by the target field
// it controls.
type ControlRule struct {
	Type         RuleType `json:"type"`
	ValuePath    string   `json:"value_path,omitempty"`
	EnumPath     string   `json:"enum_path,omitempty"`
	ValueKey     string   `json:"value_key,omitempty"`
	LabelKey     string   `json:"label_key,omitempty"`
	LabelFormat  string   `json:"label_format,omitempty"`
	DefaultIndex *int     `json:"default_index,omitempty"`
	Reset        bool     `json:"reset,omitempty"`
}

// UX is the presentation side-channel carried under _ux.
type UX struct {
	Display       Display `json:"display,omitempty"`
	RenderAs      string  `json:"render_as,omitempty"`
	DisplayLabel  string  `json:"display_label,omitempty"`
	LabelField    string  `json:"label_field,omitempty"`
	DisplayFormat string  `json:"display_format,omitempty"`

	InputType   InputType `json:"input_type,omitempty"`
	InputSchema *Node     `json:"input_schema,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
	Step        *float64  `json:"step,omitempty"`

	// Static options: inline list or a path into the ambient data.
	Options     []any  `json:"options,omitempty"`
	OptionsPath string `json:"options_path,omitempty"`
	ValueKey    string `json:"value_key,omitempty"`
	LabelKey    string `json:"label_key,omitempty"`
	LabelFormat string `json:"label_format,omitempty"`

	Controls map[string]ControlRule `json:"controls,omitempty"`

	// Initial value sources, in priority order after Template.
	Template         string `json:"template,omitempty"`
	SourceField      string `json:"source_field,omitempty"`
	DestinationField string `json:"destination_field,omitempty"`

	// Generation panel metadata.
	Provider    string `json:"provider,omitempty"`
	PromptID    string `json:"prompt_id,omitempty"`
	SubActionID string `json:"sub_action_id,omitempty"`
}

// WithRenderAs returns a copy carrying a different render_as directive.
func (u UX) WithRenderAs(renderAs string) UX {
	u.RenderAs = renderAs
	return u
}

// Label resolves the human label for a field, falling back to its key.
func (u UX) Label(key string) string {
	if u.DisplayLabel != "" {
		return u.DisplayLabel
	}
	return key
}
