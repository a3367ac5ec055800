package datapath_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finops-claw-gang/genui/internal/datapath"
)

func sample() map[string]any {
	return map[string]any{
		"title": "Launch",
		"sizes": []any{
			map[string]any{"label": "S", "w": float64(512)},
			map[string]any{"label": "L", "w": float64(1024)},
		},
	}
}

func TestGet_NestedIndex(t *testing.T) {
	v, ok := datapath.Get(sample(), "sizes.1.label")
	require.True(t, ok)
	assert.Equal(t, "L", v)
}

func TestGet_EmptyPathReturnsData(t *testing.T) {
	data := sample()
	v, ok := datapath.Get(data, "")
	require.True(t, ok)
	assert.Equal(t, data, v)
}

func TestGet_Length(t *testing.T) {
	v, ok := datapath.Get(sample(), "sizes.length")
	require.True(t, ok)
	assert.Equal(t, float64(2), v)

	v, ok = datapath.Get(sample(), "title.length")
	require.True(t, ok)
	assert.Equal(t, float64(6), v)
}

func TestGet_Missing(t *testing.T) {
	for _, p := range []string{"nope", "sizes.9", "sizes.x", "title.label"} {
		_, ok := datapath.Get(sample(), p)
		assert.False(t, ok, p)
	}
}

func TestSlice(t *testing.T) {
	arr, ok := datapath.Slice(sample(), "sizes")
	require.True(t, ok)
	assert.Len(t, arr, 2)

	_, ok = datapath.Slice(sample(), "title")
	assert.False(t, ok)
}
