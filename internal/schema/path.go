package schema

import (
	"strconv"
	"strings"
)

// Path addresses a node by property names and array indices from the
// document root. Paths are the only identity stores use.
type Path []string

// Root is the empty path.
func Root() Path { return Path{} }

// ParsePath splits a dotted key back into a path.
func ParsePath(key string) Path {
	if key == "" {
		return Path{}
	}
	return Path(strings.Split(key, "."))
}

// Child returns a new path extended by one segment. The receiver is never
// aliased by the result.
func (p Path) Child(seg string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// Index extends the path with an array index.
func (p Path) Index(i int) Path {
	return p.Child(strconv.Itoa(i))
}

// Key is the stable dotted form used for map keys.
func (p Path) Key() string {
	return strings.Join(p, ".")
}

func (p Path) String() string {
	if len(p) == 0 {
		return "<root>"
	}
	return p.Key()
}

// Last returns the final segment or "".
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor of, or equal to, p.
func (p Path) HasPrefix(prefix Path) bool {
	return len(prefix) <= len(p) && p[:len(prefix)].Equal(prefix)
}

// TrimPrefix returns p relative to prefix. If prefix is not an ancestor
// the original path is returned.
func (p Path) TrimPrefix(prefix Path) Path {
	if !p.HasPrefix(prefix) {
		return p
	}
	out := make(Path, len(p)-len(prefix))
	copy(out, p[len(prefix):])
	return out
}
