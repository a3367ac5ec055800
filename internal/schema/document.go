package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document pairs a schema with the data it describes.
type Document struct {
	Schema *Node `json:"schema"`
	Data   any   `json:"data"`
}

// ParseNode decodes a single JSON schema node.
func ParseNode(b []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(b, &n); err != nil {
		return nil, fmt.Errorf("schema: decode node: %w", err)
	}
	return &n, nil
}

// ParseDocument decodes a JSON document of the form {"schema":..., "data":...}.
func ParseDocument(b []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("schema: decode document: %w", err)
	}
	if doc.Schema == nil {
		return Document{}, fmt.Errorf("schema: document has no schema")
	}
	return doc, nil
}

// ParseDocumentYAML decodes a YAML document. Mapping order is preserved so
// property order survives the conversion.
func ParseDocumentYAML(b []byte) (Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return Document{}, fmt.Errorf("schema: decode yaml: %w", err)
	}
	var buf bytes.Buffer
	if err := yamlToJSON(&buf, &root); err != nil {
		return Document{}, fmt.Errorf("schema: convert yaml: %w", err)
	}
	return ParseDocument(buf.Bytes())
}

// LoadDocument reads a document from disk, choosing the decoder by file
// extension.
func LoadDocument(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("schema: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseDocumentYAML(b)
	default:
		return ParseDocument(b)
	}
}

// NodeAt walks a path through schema and data together, returning the node
// and the data found there.
func NodeAt(root *Node, data any, p Path) (*Node, any, bool) {
	node, cur := root, data
	for _, seg := range p {
		switch node.Kind() {
		case TypeObject:
			child, ok := node.Property(seg)
			if !ok {
				return nil, nil, false
			}
			node = child
			m, _ := cur.(map[string]any)
			cur = m[seg]
		case TypeArray:
			if node.Items == nil {
				return nil, nil, false
			}
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 {
				return nil, nil, false
			}
			node = node.Items
			arr, _ := cur.([]any)
			if i < len(arr) {
				cur = arr[i]
			} else {
				cur = nil
			}
		default:
			return nil, nil, false
		}
	}
	return node, cur, node != nil
}

// Walk visits every schema node reachable from root together with its
// data, in declaration order. Array items are visited once per element.
// Display hints are ignored.
func Walk(root *Node, data any, fn func(p Path, n *Node, data any)) {
	walk(Root(), root, data, fn)
}

func walk(p Path, n *Node, data any, fn func(Path, *Node, any)) {
	if n == nil {
		return
	}
	fn(p, n, data)
	switch n.Kind() {
	case TypeObject:
		m, _ := data.(map[string]any)
		for pair := n.Properties.Oldest(); pair != nil; pair = pair.Next() {
			walk(p.Child(pair.Key), pair.Value, m[pair.Key], fn)
		}
	case TypeArray:
		arr, _ := data.([]any)
		for i, item := range arr {
			walk(p.Index(i), n.Items, item, fn)
		}
	}
}

func yamlToJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return yamlToJSON(buf, n.Content[0])
	case yaml.AliasNode:
		return yamlToJSON(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := yamlToJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := yamlToJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
