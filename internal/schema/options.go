package schema

import (
	"strconv"

	"github.com/finops-claw-gang/genui/internal/datapath"
	"github.com/finops-claw-gang/genui/internal/format"
)

// Option is one choice offered by a select field. Source keeps the item
// the option was projected from so cascades can read sibling fields.
type Option struct {
	Key    string `json:"key"`
	Value  any    `json:"value"`
	Label  string `json:"label"`
	Source any    `json:"-"`
}

// IsObject reports whether the option value is not a primitive, in which
// case widgets address it by index.
func (o Option) IsObject() bool {
	switch o.Value.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// ProjectOptions turns raw items into options. valueKey picks the value out
// of object items (the whole item when empty); the label comes from
// labelFormat, then labelKey, then the stringified value.
func ProjectOptions(items []any, valueKey, labelKey, labelFormat string) []Option {
	opts := make([]Option, 0, len(items))
	for i, item := range items {
		opt := Option{Value: item, Source: item}
		obj, isObj := item.(map[string]any)
		if isObj {
			if valueKey != "" {
				opt.Value = obj[valueKey]
			} else if v, ok := obj["value"]; ok {
				opt.Value = v
			}
		}
		switch {
		case labelFormat != "":
			opt.Label = format.Render(labelFormat, item, map[string]any{"index": float64(i)})
		case isObj && labelKey != "":
			opt.Label = format.Stringify(obj[labelKey])
		case isObj && obj["label"] != nil:
			opt.Label = format.Stringify(obj["label"])
		default:
			opt.Label = format.Stringify(opt.Value)
		}
		if opt.IsObject() {
			opt.Key = strconv.Itoa(i)
		} else {
			opt.Key = format.Stringify(opt.Value)
		}
		opts = append(opts, opt)
	}
	return opts
}

// StaticOptions resolves the options declared on a field: inline options,
// then options_path into the ambient data, then the node's enum.
func StaticOptions(field *Node, ambient any) []Option {
	ux := field.Hints()
	switch {
	case len(ux.Options) > 0:
		return ProjectOptions(ux.Options, ux.ValueKey, ux.LabelKey, ux.LabelFormat)
	case ux.OptionsPath != "":
		items, _ := datapath.Slice(ambient, ux.OptionsPath)
		return ProjectOptions(items, ux.ValueKey, ux.LabelKey, ux.LabelFormat)
	case field != nil && len(field.Enum) > 0:
		return ProjectOptions(field.Enum, "", "", ux.LabelFormat)
	}
	return nil
}
