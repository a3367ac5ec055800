// Package format renders {placeholder} templates and turns decoded JSON
// values into display strings.
package format

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/finops-claw-gang/genui/internal/datapath"
)

// Render replaces each {path} placeholder with the first scope that
// resolves it. "{.}" is the first scope itself. "{{" and "}}" escape
// literal braces. Unresolved placeholders render empty.
func Render(tmpl string, scopes ...any) string {
	out, _ := render(tmpl, scopes)
	return out
}

// RenderStrict is Render but reports false if any placeholder failed to
// resolve.
func RenderStrict(tmpl string, scopes ...any) (string, bool) {
	return render(tmpl, scopes)
}

// HasPlaceholders reports whether tmpl contains at least one placeholder.
func HasPlaceholders(tmpl string) bool {
	return len(Placeholders(tmpl)) > 0
}

// Placeholders lists the placeholder paths in order of appearance.
func Placeholders(tmpl string) []string {
	var names []string
	scan(tmpl, func(lit string) {}, func(name string) { names = append(names, name) })
	return names
}

func render(tmpl string, scopes []any) (string, bool) {
	var b strings.Builder
	complete := true
	scan(tmpl, func(lit string) { b.WriteString(lit) }, func(name string) {
		v, ok := resolve(name, scopes)
		if !ok {
			complete = false
			return
		}
		b.WriteString(Stringify(v))
	})
	return b.String(), complete
}

func resolve(name string, scopes []any) (any, bool) {
	if name == "." {
		if len(scopes) == 0 {
			return nil, false
		}
		return scopes[0], true
	}
	for _, s := range scopes {
		if v, ok := datapath.Get(s, name); ok {
			return v, true
		}
	}
	return nil, false
}

func scan(tmpl string, lit func(string), ph func(string)) {
	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			lit("{")
			i += 2
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			lit("}")
			i += 2
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				lit(tmpl[i:])
				return
			}
			ph(strings.TrimSpace(tmpl[i+1 : i+1+end]))
			i += end + 2
		default:
			j := i + 1
			for j < len(tmpl) && tmpl[j] != '{' && tmpl[j] != '}' {
				j++
			}
			lit(tmpl[i:j])
			i = j
		}
	}
}

// Stringify renders a decoded JSON value for display. Integral floats drop
// their fractional part; arrays join with ", "; objects fall back to JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = Stringify(e)
		}
		return strings.Join(parts, ", ")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
