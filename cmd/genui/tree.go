package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/finops-claw-gang/genui/internal/format"
	"github.com/finops-claw-gang/genui/internal/render"
)

var (
	kindStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// planTree lays a render plan out as a terminal tree.
func planTree(el *render.Element) *tree.Tree {
	t := tree.Root(describe(el)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(dimStyle)

	for _, m := range el.Media {
		t.Child(dimStyle.Render(m.Kind) + " " + m.URL)
	}
	if el.Table != nil {
		for i, row := range el.Table.Rows {
			r := tree.Root(dimStyle.Render(fmt.Sprintf("row %d", i)))
			for _, cell := range row {
				r.Child(planTree(cell))
			}
			t.Child(r)
		}
	}
	for _, c := range el.Children {
		t.Child(planTree(c))
	}
	return t
}

func describe(el *render.Element) string {
	head := kindStyle.Render(string(el.Kind))
	if el.Token != "" {
		head += dimStyle.Render("[" + string(el.Token) + "]")
	}
	parts := []string{head}
	if len(el.Path) > 0 {
		parts = append(parts, dimStyle.Render(el.Path.String()))
	}
	if el.Label != "" {
		parts = append(parts, el.Label+":")
	}

	switch {
	case el.Input != nil:
		in := el.Input
		field := in.Field
		if in.Required {
			field += "*"
		}
		parts = append(parts, fmt.Sprintf("%s = %s", field, format.Stringify(in.Value)))
		if len(in.Options) > 0 {
			parts = append(parts, dimStyle.Render(fmt.Sprintf("(%d options)", len(in.Options))))
		}
		if in.Error != "" {
			parts = append(parts, errStyle.Render(in.Error))
		}
	case el.Generation != nil:
		g := el.Generation
		parts = append(parts, fmt.Sprintf("%s via %s/%s: %s", g.ActionType, g.Provider, g.PromptID, g.State.Phase))
		if n := len(g.State.Results); n > 0 {
			parts = append(parts, fmt.Sprintf("%d results", n))
		}
		if g.State.Error != "" {
			parts = append(parts, errStyle.Render(g.State.Error))
		}
		for _, e := range g.Errors {
			parts = append(parts, errStyle.Render(e))
		}
	case el.Tabs != nil:
		parts = append(parts, "active="+el.Tabs.Active)
	case el.Selection != nil:
		mark := "[ ]"
		if el.Selection.Selected {
			mark = "[x]"
		}
		parts = append(parts, mark)
		if el.Selection.Feedback != "" {
			parts = append(parts, fmt.Sprintf("%q", el.Selection.Feedback))
		}
	case el.Diagnostic != nil:
		parts = append(parts, errStyle.Render(el.Diagnostic.Message))
	case el.Scope != nil && len(el.Scope.Errors) > 0:
		parts = append(parts, errStyle.Render(fmt.Sprintf("%d invalid fields", len(el.Scope.Errors))))
	}

	switch {
	case el.Text != "":
		parts = append(parts, el.Text)
	case el.Value != nil:
		parts = append(parts, format.Stringify(el.Value))
	}
	return strings.Join(parts, " ")
}
