// Package datapath resolves dotted paths such as "sizes.0.label" against
// decoded JSON values.
package datapath

import (
	"strconv"
	"strings"
)

// Get resolves a dotted path. An empty path returns data itself. The
// pseudo-segment "length" yields the size of an array, string or object.
func Get(data any, path string) (any, bool) {
	if path == "" || path == "." {
		return data, true
	}
	return Lookup(data, strings.Split(path, "."))
}

// Lookup resolves pre-split segments.
func Lookup(data any, segs []string) (any, bool) {
	cur := data
	for _, seg := range segs {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Slice resolves a path that must point at an array.
func Slice(data any, path string) ([]any, bool) {
	v, ok := Get(data, path)
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}

func step(cur any, seg string) (any, bool) {
	switch v := cur.(type) {
	case map[string]any:
		if next, ok := v[seg]; ok {
			return next, true
		}
		if seg == "length" {
			return float64(len(v)), true
		}
	case []any:
		if seg == "length" {
			return float64(len(v)), true
		}
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	case string:
		if seg == "length" {
			return float64(len(v)), true
		}
	}
	return nil, false
}
