// Package markdown renders answers to HTML for preview clients.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	ghhtml "github.com/yuin/goldmark/renderer/html"
)

// Renderer converts answer markdown to HTML. Citation markers ("##N$$") are
// ordinary inline text in CommonMark and come through unescaped, so clients
// can still locate them in the rendered output.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a renderer with table support. Raw HTML is passed
// through because answers embed cited images as <img> tags.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(ghhtml.WithUnsafe()),
		),
	}
}

// Render converts answer to HTML.
func (r *Renderer) Render(answer string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(answer), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}
