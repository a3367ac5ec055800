package session

import (
	"bytes"
	"log/slog"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finops-claw-gang/genui/internal/render"
	"github.com/finops-claw-gang/genui/internal/schema"
)

func TestScopeLookup_UnknownRootIsNotRegistered(t *testing.T) {
	doc, err := schema.ParseDocument([]byte(`{
	  "schema": {"type":"object","properties":{
	    "card": {"type":"object","_ux":{"render_as":"card[input_schema]",
	      "input_schema":{"type":"object","properties":{"title":{"type":"string"}}}}}}},
	  "data": {"card": {}}
	}`))
	require.NoError(t, err)
	s := New(Options{ID: "s1", Document: doc, Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))})
	t.Cleanup(s.Close)

	before := slices.Sorted(maps.Keys(s.scopes))
	require.ElementsMatch(t, []string{schema.Root().Key(), "card"}, before)

	s.mu.Lock()
	st := scopeLookup{s}.Scope(schema.ParsePath("nowhere"))
	s.mu.Unlock()
	require.NotNil(t, st)
	assert.Empty(t, st.Values())

	s.Render()
	s.Snapshot()
	assert.Equal(t, before, slices.Sorted(maps.Keys(s.scopes)))

	require.NoError(t, s.SetValue(schema.ParsePath("card"), "title", "Dune"))
	in := s.Render().Find(render.OfKind(render.KindInput))
	require.NotNil(t, in)
	assert.Equal(t, "Dune", in.Input.Value)
}
