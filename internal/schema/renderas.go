package schema

import (
	"sort"
	"strings"
)

// Token is one render_as directive.
type Token string

const (
	TokenTab         Token = "tab"
	TokenTabs        Token = "tabs"
	TokenInputSchema Token = "input_schema"

	TokenContainer Token = "container"
	TokenSection   Token = "section"
	TokenCard      Token = "card"
	TokenRow       Token = "row"
	TokenColumn    Token = "column"
	TokenGrid      Token = "grid"

	TokenTitle       Token = "title"
	TokenSubtitle    Token = "subtitle"
	TokenDescription Token = "description"
	TokenMeta        Token = "meta"
	TokenHighlight   Token = "highlight"

	TokenContentPanel    Token = "content_panel"
	TokenTable           Token = "table"
	TokenMedia           Token = "media"
	TokenImageGeneration Token = "image_generation"
	TokenVideoGeneration Token = "video_generation"
	TokenAudioGeneration Token = "audio_generation"
	TokenImageToVideo    Token = "image_to_video"
	TokenPick            Token = "pick"
	TokenReview          Token = "review"

	TokenText     Token = "text"
	TokenColor    Token = "color"
	TokenURL      Token = "url"
	TokenDatetime Token = "datetime"
	TokenNumber   Token = "number"
	TokenImage    Token = "image"
	TokenVideo    Token = "video"
	TokenAudio    Token = "audio"
)

// Class groups tokens by how the walker routes them.
type Class int

const (
	ClassUnknown Class = iota
	ClassNone
	ClassTab
	ClassTabs
	ClassInputSchema
	ClassContainer
	ClassRole
	ClassComposite
	ClassTerminal
)

var tokenClasses = map[Token]Class{
	TokenTab:         ClassTab,
	TokenTabs:        ClassTabs,
	TokenInputSchema: ClassInputSchema,

	TokenContainer: ClassContainer,
	TokenSection:   ClassContainer,
	TokenCard:      ClassContainer,
	TokenRow:       ClassContainer,
	TokenColumn:    ClassContainer,
	TokenGrid:      ClassContainer,

	TokenTitle:       ClassRole,
	TokenSubtitle:    ClassRole,
	TokenDescription: ClassRole,
	TokenMeta:        ClassRole,
	TokenHighlight:   ClassRole,

	TokenContentPanel:    ClassComposite,
	TokenTable:           ClassComposite,
	TokenMedia:           ClassComposite,
	TokenImageGeneration: ClassComposite,
	TokenVideoGeneration: ClassComposite,
	TokenAudioGeneration: ClassComposite,
	TokenImageToVideo:    ClassComposite,
	TokenPick:            ClassComposite,
	TokenReview:          ClassComposite,

	TokenText:     ClassTerminal,
	TokenColor:    ClassTerminal,
	TokenURL:      ClassTerminal,
	TokenDatetime: ClassTerminal,
	TokenNumber:   ClassTerminal,
	TokenImage:    ClassTerminal,
	TokenVideo:    ClassTerminal,
	TokenAudio:    ClassTerminal,
}

// Class reports the routing class. The empty token is ClassNone.
func (t Token) Class() Class {
	if t == "" {
		return ClassNone
	}
	if c, ok := tokenClasses[t]; ok {
		return c
	}
	return ClassUnknown
}

// IsGeneration reports whether the token names a generation panel.
func (t Token) IsGeneration() bool {
	switch t {
	case TokenImageGeneration, TokenVideoGeneration, TokenAudioGeneration, TokenImageToVideo:
		return true
	}
	return false
}

// KnownTokens lists every accepted token, sorted.
func KnownTokens() []string {
	out := make([]string, 0, len(tokenClasses))
	for t := range tokenClasses {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// Segment is one dot-separated part of a render_as directive, optionally
// carrying bracketed siblings.
type Segment struct {
	Raw      string
	Token    Token
	Siblings []string
	Brackets bool
}

// RenderSpec is a parsed render_as directive. Chain is ordered outermost
// first: "a.b.c" renders c, wrapped by b, wrapped by a.
type RenderSpec struct {
	Raw   string
	Chain []Segment
}

// ParseRenderAs parses a render_as string. Dots inside brackets do not
// split the chain, so "tab.media[input_schema,image_generation]" is two
// segments.
func ParseRenderAs(raw string) RenderSpec {
	spec := RenderSpec{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return spec
	}
	for _, part := range splitTop(raw, '.') {
		spec.Chain = append(spec.Chain, parseSegment(part))
	}
	return spec
}

// Compound reports whether the directive needs chain handling rather than
// single-token dispatch.
func (r RenderSpec) Compound() bool {
	return len(r.Chain) > 1 || (len(r.Chain) == 1 && r.Chain[0].Brackets)
}

// Tokens returns every token named anywhere in the directive, including
// nested siblings.
func (r RenderSpec) Tokens() []Token {
	var out []Token
	for _, seg := range r.Chain {
		out = append(out, seg.Token)
		for _, sib := range seg.Siblings {
			out = append(out, ParseRenderAs(sib).Tokens()...)
		}
	}
	return out
}

// HasInputScope reports whether any segment declares an input_schema
// sibling.
func (r RenderSpec) HasInputScope() bool {
	for _, seg := range r.Chain {
		if seg.HasSibling(TokenInputSchema) {
			return true
		}
	}
	return false
}

// HasSibling reports whether tok appears as a bracketed sibling.
func (s Segment) HasSibling(tok Token) bool {
	for _, sib := range s.Siblings {
		if Token(sib) == tok {
			return true
		}
	}
	return false
}

// GenerationToken finds the generation panel token named by a render_as
// directive, if any.
func GenerationToken(renderAs string) (Token, bool) {
	for _, t := range ParseRenderAs(renderAs).Tokens() {
		if t.IsGeneration() {
			return t, true
		}
	}
	return "", false
}

func parseSegment(part string) Segment {
	part = strings.TrimSpace(part)
	seg := Segment{Raw: part}
	open := strings.IndexByte(part, '[')
	if open < 0 || !strings.HasSuffix(part, "]") {
		seg.Token = Token(part)
		return seg
	}
	seg.Token = Token(strings.TrimSpace(part[:open]))
	seg.Brackets = true
	for _, sib := range splitTop(part[open+1:len(part)-1], ',') {
		if sib = strings.TrimSpace(sib); sib != "" {
			seg.Siblings = append(seg.Siblings, sib)
		}
	}
	return seg
}

// splitTop splits s on sep, ignoring separators nested in brackets.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
