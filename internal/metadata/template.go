package metadata

import (
	"strings"

	"github.com/pitabwire/dealerdesk/internal/accessor"
	"github.com/pitabwire/dealerdesk/model"
)

// Template renders a column template such as "{first_name} {last_name}".
// Placeholders are dot-paths; missing values render blank.
type Template struct {
	parts []templatePart
}

type templatePart struct {
	literal string
	path    string
}

// CompileTemplate parses a template. An unclosed brace is kept as literal
// text.
func CompileTemplate(src string) Template {
	var t Template
	for src != "" {
		open := strings.IndexByte(src, '{')
		if open < 0 {
			t.parts = append(t.parts, templatePart{literal: src})
			break
		}
		end := strings.IndexByte(src[open:], '}')
		if end < 0 {
			t.parts = append(t.parts, templatePart{literal: src})
			break
		}
		if open > 0 {
			t.parts = append(t.parts, templatePart{literal: src[:open]})
		}
		path := strings.TrimSpace(src[open+1 : open+end])
		t.parts = append(t.parts, templatePart{path: path})
		src = src[open+end+1:]
	}
	return t
}

// Paths returns the placeholder paths in order.
func (t Template) Paths() []string {
	var out []string
	for _, p := range t.parts {
		if p.path != "" {
			out = append(out, p.path)
		}
	}
	return out
}

// Render fills the template from r. Surrounding whitespace is trimmed so a
// record missing every placeholder renders "".
func (t Template) Render(r model.Record) any {
	var b strings.Builder
	for _, p := range t.parts {
		if p.path == "" {
			b.WriteString(p.literal)
			continue
		}
		b.WriteString(accessor.String(accessor.Get(r, p.path)))
	}
	return strings.TrimSpace(b.String())
}
