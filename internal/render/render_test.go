package render_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finops-claw-gang/genui/internal/generation"
	"github.com/finops-claw-gang/genui/internal/render"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/store"
	"github.com/finops-claw-gang/genui/internal/tasks"
)

type scopes map[string]*store.ValueStore

func (s scopes) Scope(root schema.Path) *store.ValueStore {
	st, ok := s[root.Key()]
	if !ok {
		st = store.NewValueStore()
		s[root.Key()] = st
	}
	return st
}

type panels map[string]generation.View

func (g panels) View(p schema.Path) generation.View { return g[p.Key()] }

func parseDoc(t *testing.T, js string) schema.Document {
	t.Helper()
	doc, err := schema.ParseDocument([]byte(js))
	require.NoError(t, err)
	return doc
}

func parseNode(t *testing.T, js string) *schema.Node {
	t.Helper()
	n, err := schema.ParseNode([]byte(js))
	require.NoError(t, err)
	return n
}

func quietEnv() render.Env {
	return render.Env{Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
}

func TestRender_NilDataWithoutInputRendersNothing(t *testing.T) {
	n := parseNode(t, `{"type":"string","_ux":{"display":"visible"}}`)
	assert.Nil(t, render.Node(nil, n, schema.Root(), quietEnv()))
}

func TestRender_DisplayModes(t *testing.T) {
	const props = `"properties":{
		"a":{"type":"string","_ux":{"display":"visible"}},
		"b":{"type":"number","_ux":{"display":"visible"}}}`
	data := map[string]any{"a": "x", "b": 2.0}

	cases := []struct {
		display string
		check   func(t *testing.T, el *render.Element)
	}{
		{"", func(t *testing.T, el *render.Element) { assert.Nil(t, el) }},
		{"hidden", func(t *testing.T, el *render.Element) { assert.Nil(t, el) }},
		{"passthrough", func(t *testing.T, el *render.Element) {
			require.NotNil(t, el)
			assert.Equal(t, render.KindFragment, el.Kind)
			require.Len(t, el.Children, 2)
			assert.Equal(t, "x", el.Children[0].Text)
		}},
		{"visible", func(t *testing.T, el *render.Element) {
			require.NotNil(t, el)
			assert.Equal(t, render.KindContainer, el.Kind)
			assert.Equal(t, schema.TokenContainer, el.Token)
			require.Len(t, el.Children, 2)
			assert.Equal(t, schema.TokenNumber, el.Children[1].Token)
			assert.Equal(t, "2", el.Children[1].Text)
		}},
	}
	for _, tc := range cases {
		t.Run("display="+tc.display, func(t *testing.T) {
			n := parseNode(t, `{"type":"object",`+props+`,"_ux":{"display":"`+tc.display+`"}}`)
			tc.check(t, render.Node(data, n, schema.Root(), quietEnv()))
		})
	}
}

func TestRender_PassthroughSplicesIntoParent(t *testing.T) {
	doc := parseDoc(t, `{
		"schema":{"type":"object","_ux":{"display":"visible","render_as":"card"},"properties":{
			"inner":{"type":"object","_ux":{"display":"passthrough"},"properties":{
				"x":{"type":"string","_ux":{"display":"visible"}},
				"y":{"type":"string","_ux":{"display":"visible"}}}}}},
		"data":{"inner":{"x":"1","y":"2"}}}`)

	el := render.Render(doc, quietEnv())
	require.NotNil(t, el)
	assert.Equal(t, schema.TokenCard, el.Token)
	require.Len(t, el.Children, 2)
	assert.Equal(t, schema.ParsePath("inner.x"), el.Children[0].Path)
	assert.Equal(t, schema.ParsePath("inner.y"), el.Children[1].Path)
}

func TestRender_DisplayFormatWithoutRenderAs(t *testing.T) {
	n := parseNode(t, `{"type":"object","_ux":{"display_format":"{name} ({age})","display_label":"Who"}}`)
	el := render.Node(map[string]any{"name": "Ada", "age": 36.0}, n, schema.Root(), quietEnv())
	require.NotNil(t, el)
	assert.Equal(t, render.KindValue, el.Kind)
	assert.Equal(t, "Ada (36)", el.Text)
	assert.Equal(t, "Who", el.Label)
}

func TestRender_RoleOnPrimitive(t *testing.T) {
	n := parseNode(t, `{"type":"string","_ux":{"display":"visible","render_as":"title"}}`)
	el := render.Node("Quarterly report", n, schema.Root(), quietEnv())
	require.NotNil(t, el)
	assert.Equal(t, render.KindRole, el.Kind)
	assert.Equal(t, schema.TokenTitle, el.Token)
	assert.Equal(t, "Quarterly report", el.Text)
}

func TestRender_UnknownTokenDiagnostic(t *testing.T) {
	doc := parseDoc(t, `{
		"schema":{"type":"object","_ux":{"display":"visible"},"properties":{
			"bad":{"type":"string","_ux":{"display":"visible","render_as":"sparkle"}},
			"ok":{"type":"string","_ux":{"display":"visible"}}}},
		"data":{"bad":"x","ok":"y"}}`)

	var logs bytes.Buffer
	env := render.Env{Logger: slog.New(slog.NewTextHandler(&logs, nil))}
	el := render.Render(doc, env)
	require.NotNil(t, el)
	require.Len(t, el.Children, 2, "the rest of the tree still renders")

	diag := el.Children[0]
	assert.Equal(t, render.KindDiagnostic, diag.Kind)
	assert.Equal(t, render.SeverityWarning, diag.Diagnostic.Severity)
	assert.Equal(t, "bad", diag.Diagnostic.Field)
	assert.Contains(t, diag.Diagnostic.Message, "sparkle")
	assert.Contains(t, diag.Diagnostic.Expected, "media")
	assert.Contains(t, logs.String(), "unknown render_as token")
}

func galleryDoc(t *testing.T) schema.Document {
	return parseDoc(t, `{
		"schema":{"type":"object","_ux":{"display":"passthrough"},"properties":{
			"gallery":{"type":"object","_ux":{"render_as":"tabs"},"properties":{
				"photos":{"type":"array","items":{"type":"string"},"_ux":{"render_as":"tab.media"}},
				"clips":{"type":"array","items":{"type":"string"},"_ux":{"render_as":"tab.media"}}}}}},
		"data":{"gallery":{
			"photos":["https://cdn.example.com/a.png"],
			"clips":["https://cdn.example.com/b.mp4"]}}}`)
}

func TestRender_DottedTabMediaMatchesDirectMedia(t *testing.T) {
	doc := galleryDoc(t)
	env := quietEnv()

	el := render.Render(doc, env)
	require.NotNil(t, el)
	require.Equal(t, render.KindTabs, el.Kind)
	assert.Equal(t, []store.Tab{
		{ID: "gallery.photos", Label: "photos"},
		{ID: "gallery.clips", Label: "clips"},
	}, el.Tabs.Tabs, "inactive tabs stay registered")
	assert.Equal(t, "gallery.photos", el.Tabs.Active)

	direct := parseNode(t, `{"type":"array","items":{"type":"string"},"_ux":{"render_as":"media"}}`)
	want := render.Node([]any{"https://cdn.example.com/a.png"}, direct, schema.ParsePath("gallery.photos"), env)
	require.Len(t, el.Children, 1, "only the active tab renders content")
	assert.Equal(t, want, el.Children[0])
}

func TestRender_RequestedTabIsActive(t *testing.T) {
	env := quietEnv()
	env.ActiveTabs = map[string]string{"gallery": "gallery.clips"}

	el := render.Render(galleryDoc(t), env)
	require.NotNil(t, el)
	assert.Equal(t, "gallery.clips", el.Tabs.Active)
	require.Len(t, el.Children, 1)
	require.Len(t, el.Children[0].Media, 1)
	assert.Equal(t, render.MediaItem{URL: "https://cdn.example.com/b.mp4", Kind: "video"}, el.Children[0].Media[0])
}

func TestRender_TabOutsideTabsRendersInline(t *testing.T) {
	n := parseNode(t, `{"type":"array","items":{"type":"string"},"_ux":{"render_as":"tab.media"}}`)
	el := render.Node([]any{"https://cdn.example.com/a.png"}, n, schema.ParsePath("loose"), quietEnv())
	require.NotNil(t, el)
	assert.Equal(t, render.KindMedia, el.Kind)
}

func TestRender_CompoundIsIdempotent(t *testing.T) {
	doc := galleryDoc(t)
	assert.Equal(t, render.Render(doc, quietEnv()), render.Render(doc, quietEnv()))
}

func promptDoc(t *testing.T, genUX string) schema.Document {
	return parseDoc(t, `{
		"schema":{"type":"object","_ux":{"display":"passthrough"},"properties":{
			"hero":{"type":"object","_ux":{
				"render_as":"card[input_schema,image_generation]",`+genUX+`
				"input_schema":{"type":"object","required":["w"],"properties":{
					"prompt":{"type":"string","_ux":{"input_type":"textarea","source_field":"caption"}},
					"w":{"type":"number","minimum":1,"_ux":{"input_type":"number"}}}}}}}},
		"data":{"hero":{"caption":"a red fox"}}}`)
}

func TestRender_InputScopeFieldsAndGeneration(t *testing.T) {
	doc := promptDoc(t, `"provider":"stub","prompt_id":"hero",`)
	sc := scopes{}
	sc.Scope(schema.ParsePath("hero")).SetError("w", "w is required")
	env := quietEnv()
	env.Scopes = sc
	env.Generations = panels{"hero": {Phase: generation.PhaseRunning, TaskID: "task-1", Results: []tasks.Result{{MetadataID: "m1"}}}}

	el := render.Render(doc, env)
	require.NotNil(t, el)
	assert.Equal(t, schema.TokenCard, el.Token)

	scope := el.Find(render.OfKind(render.KindInputScope))
	require.NotNil(t, scope)
	assert.Equal(t, schema.ParsePath("hero"), scope.Path)
	assert.Equal(t, []store.FieldError{{Field: "w", Message: "w is required"}}, scope.Scope.Errors)

	inputs := el.FindAll(render.OfKind(render.KindInput))
	require.Len(t, inputs, 2)
	prompt, w := inputs[0].Input, inputs[1].Input
	assert.Equal(t, "prompt", prompt.Field)
	assert.Equal(t, schema.ParsePath("hero"), prompt.Scope)
	assert.Equal(t, "a red fox", prompt.Value, "seeded from source_field")
	assert.True(t, w.Required)
	assert.Equal(t, "w is required", w.Error)
	require.NotNil(t, w.Minimum)
	assert.InDelta(t, 1.0, *w.Minimum, 0)

	gen := el.Find(render.OfKind(render.KindGeneration))
	require.NotNil(t, gen)
	assert.Equal(t, schema.TokenImageGeneration, gen.Generation.ActionType)
	assert.Equal(t, "stub", gen.Generation.Provider)
	assert.Equal(t, []string{"w is required"}, gen.Generation.Errors)
	assert.Equal(t, "task-1", gen.Generation.State.TaskID)
}

func TestRender_StoredValueWinsOverSeed(t *testing.T) {
	sc := scopes{}
	sc.Scope(schema.ParsePath("hero")).SetValue("prompt", "a blue whale")
	env := quietEnv()
	env.Scopes = sc

	el := render.Render(promptDoc(t, `"provider":"stub","prompt_id":"hero",`), env)
	in := el.Find(render.AtPath(schema.ParsePath("hero.prompt")))
	require.NotNil(t, in)
	assert.Equal(t, "a blue whale", in.Input.Value)
}

func TestRender_GenerationMissingProvider(t *testing.T) {
	el := render.Render(promptDoc(t, ""), quietEnv())
	diag := el.Find(render.OfKind(render.KindDiagnostic))
	require.NotNil(t, diag)
	assert.Equal(t, render.SeverityError, diag.Diagnostic.Severity)
	assert.Contains(t, diag.Diagnostic.Message, "provider")
	assert.NotNil(t, el.Find(render.OfKind(render.KindInputScope)), "the scope still renders")
}

func TestRender_GenerationOutsideScopeRendersNothing(t *testing.T) {
	n := parseNode(t, `{"type":"object","_ux":{"render_as":"image_generation","provider":"stub","prompt_id":"hero"}}`)
	assert.Nil(t, render.Node(map[string]any{}, n, schema.ParsePath("hero"), quietEnv()))
}

func TestRender_InputOutsideScopeUsesRootStore(t *testing.T) {
	doc := parseDoc(t, `{
		"schema":{"type":"object","_ux":{"display":"visible"},"properties":{
			"settings":{"type":"object","_ux":{"display":"passthrough"},"properties":{
				"title":{"type":"string","default":"Untitled","_ux":{"input_type":"text","display_label":"Title"}}}}}},
		"data":{"settings":{}}}`)

	sc := scopes{}
	env := quietEnv()
	env.Scopes = sc
	el := render.Render(doc, env)
	in := el.Find(render.OfKind(render.KindInput))
	require.NotNil(t, in)
	assert.Equal(t, "settings.title", in.Input.Field)
	assert.Equal(t, schema.Root(), in.Input.Scope)
	assert.Equal(t, "Untitled", in.Input.Value)
	assert.Equal(t, "Title", in.Label)

	sc.Scope(schema.Root()).SetValue("settings.title", "Launch plan")
	in = render.Render(doc, env).Find(render.OfKind(render.KindInput))
	assert.Equal(t, "Launch plan", in.Input.Value)
}

func TestRender_SelectOptions(t *testing.T) {
	n := parseNode(t, `{"type":"object","_ux":{"render_as":"input_schema","input_schema":{"type":"object","properties":{
		"size":{"type":"string","enum":["s","m","l"],"_ux":{"input_type":"select"}},
		"region":{"type":"string","_ux":{"input_type":"select"}}}}}}`)

	sc := scopes{}
	st := sc.Scope(schema.ParsePath("form"))
	st.SetValue("size", "m")
	st.SetOptions("region", schema.ProjectOptions([]any{map[string]any{"id": 1.0}, map[string]any{"id": 2.0}}, "id", "", ""))
	st.SetValue("region", 2.0)
	env := quietEnv()
	env.Scopes = sc

	el := render.Node(map[string]any{}, n, schema.ParsePath("form"), env)
	size := el.Find(render.AtPath(schema.ParsePath("form.size"))).Input
	assert.False(t, size.Dynamic)
	require.Len(t, size.Options, 3)
	assert.Equal(t, "m", size.SelectedKey)

	region := el.Find(render.AtPath(schema.ParsePath("form.region"))).Input
	assert.True(t, region.Dynamic)
	require.Len(t, region.Options, 2)
	assert.Equal(t, "2", region.SelectedKey)
}

func TestRender_Table(t *testing.T) {
	n := parseNode(t, `{"type":"array","_ux":{"render_as":"table"},"items":{"type":"object","properties":{
		"name":{"type":"string","_ux":{"display_label":"Name"}},
		"cost":{"type":"number"},
		"secret":{"type":"string","_ux":{"display":"hidden"}}}}}`)
	data := []any{
		map[string]any{"name": "alpha", "cost": 12.5, "secret": "x"},
		map[string]any{"name": "beta", "cost": 3.0},
	}

	el := render.Node(data, n, schema.ParsePath("rows"), quietEnv())
	require.NotNil(t, el)
	assert.Equal(t, render.KindTable, el.Kind)
	assert.Equal(t, []render.Column{{Key: "name", Label: "Name"}, {Key: "cost", Label: "cost"}}, el.Table.Columns)
	require.Len(t, el.Table.Rows, 2)
	assert.Equal(t, "12.5", el.Table.Rows[0][1].Text)
	assert.Equal(t, schema.ParsePath("rows.1.name"), el.Table.Rows[1][0].Path)
	assert.NotNil(t, el.Find(render.AtPath(schema.ParsePath("rows.1.cost"))), "cells are searchable")
}

func TestRender_MediaCollectsURLs(t *testing.T) {
	n := parseNode(t, `{"type":"object","_ux":{"render_as":"media"}}`)
	data := map[string]any{
		"thumb": map[string]any{"url": "https://cdn.example.com/t.jpg?v=2"},
		"audio": "https://cdn.example.com/voice.MP3",
		"note":  "not a url",
	}
	el := render.Node(data, n, schema.Root(), quietEnv())
	assert.Equal(t, []render.MediaItem{
		{URL: "https://cdn.example.com/voice.MP3", Kind: "audio"},
		{URL: "https://cdn.example.com/t.jpg?v=2", Kind: "image"},
	}, el.Media)
}

func TestRender_PickAndReview(t *testing.T) {
	n := parseNode(t, `{"type":"array","_ux":{"render_as":"review"},"items":{"type":"string"}}`)
	sel := store.NewSelectionStore()
	sel.Select(schema.ParsePath("drafts.1"))
	sel.SetFeedback(schema.ParsePath("drafts.1"), "shorter please")
	env := quietEnv()
	env.Selection = sel

	el := render.Node([]any{"first", "second"}, n, schema.ParsePath("drafts"), env)
	items := el.FindAll(render.OfKind(render.KindSelection))
	require.Len(t, items, 2)
	assert.False(t, items[0].Selection.Selected)
	assert.True(t, items[1].Selection.Selected)
	assert.Equal(t, "shorter please", items[1].Selection.Feedback)
	require.Len(t, items[1].Children, 1)
	assert.Equal(t, "second", items[1].Children[0].Text, "items are visible without a display hint")
}
