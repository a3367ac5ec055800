// Package schema models annotated JSON Schema documents: the structural
// node tree, the _ux presentation hints, and the render_as grammar.
package schema

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Type is the structural JSON Schema type of a node.
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
)

// Properties keeps object properties in declaration order.
type Properties = orderedmap.OrderedMap[string, *Node]

// NewProperties returns an empty ordered property set.
func NewProperties() *Properties {
	return orderedmap.New[string, *Node]()
}

// Node is one schema node. At most one of a primitive Type, Properties or
// Items is meaningful; Kind resolves which.
type Node struct {
	Type        Type        `json:"type,omitempty"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Default     any         `json:"default,omitempty"`
	Enum        []any       `json:"enum,omitempty"`
	Minimum     *float64    `json:"minimum,omitempty"`
	Maximum     *float64    `json:"maximum,omitempty"`
	Required    []string    `json:"required,omitempty"`
	Properties  *Properties `json:"properties,omitempty"`
	Items       *Node       `json:"items,omitempty"`
	UX          *UX         `json:"_ux,omitempty"`
}

// Kind reports the effective structural type. Declared properties win over
// items, which win over the primitive type.
func (n *Node) Kind() Type {
	switch {
	case n == nil:
		return ""
	case n.Properties != nil:
		return TypeObject
	case n.Items != nil:
		return TypeArray
	default:
		return n.Type
	}
}

// IsStructural reports whether the node is an object or an array.
func (n *Node) IsStructural() bool {
	k := n.Kind()
	return k == TypeObject || k == TypeArray
}

// Hints returns a copy of the node's _ux block, or the zero value.
func (n *Node) Hints() UX {
	if n == nil || n.UX == nil {
		return UX{}
	}
	return *n.UX
}

// Property looks up a declared property by name.
func (n *Node) Property(name string) (*Node, bool) {
	if n == nil || n.Properties == nil {
		return nil, false
	}
	return n.Properties.Get(name)
}

// PropertyNames lists declared properties in declaration order.
func (n *Node) PropertyNames() []string {
	if n == nil || n.Properties == nil {
		return nil
	}
	names := make([]string, 0, n.Properties.Len())
	for pair := n.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// IsRequired reports whether the named child is required, either through
// the child's own _ux.required flag or this node's required list.
func (n *Node) IsRequired(name string) bool {
	if n == nil {
		return false
	}
	child, ok := n.Property(name)
	if ok && child.UX != nil && child.UX.Required {
		return true
	}
	for _, r := range n.Required {
		if r == name {
			return true
		}
	}
	return false
}
