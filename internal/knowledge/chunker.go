package knowledge

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	minChunkRunes = 50
	maxChunkRunes = 700 // Targets ~450 tokens for a 512-token embedding model
)

// imageRe matches markdown images and captures their destination.
var imageRe = regexp.MustCompile(`!\[[^\]]*\]\(\s*<?([^)\s>]+)`)

// Section is a piece of a document filed under one heading path.
type Section struct {
	HeadingPath string // "# Guide > ## Install"
	Text        string
	ImageID     string // First image stored next to the document, if any
}

// Chunker splits markdown documents into sections along their headings.
type Chunker struct {
	md goldmark.Markdown
}

// NewChunker creates a chunker.
func NewChunker() *Chunker {
	return &Chunker{
		md: goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

type heading struct {
	level int
	text  string
	start int // offset of the heading line
	end   int // offset just past the heading, underline included
}

// Split cuts src at its top-level headings. Text before the first heading is
// filed under title. Sections shorter than minChunkRunes are merged with the
// following ones and longer than maxChunkRunes are split, preferring
// paragraph, line and sentence boundaries in that order.
func (c *Chunker) Split(src []byte, title string) []Section {
	if len(bytes.TrimSpace(src)) == 0 {
		return nil
	}
	heads := c.headings(src)

	var sections []Section
	preambleEnd := len(src)
	if len(heads) > 0 {
		preambleEnd = heads[0].start
	}
	if body := strings.TrimSpace(string(src[:preambleEnd])); body != "" {
		sections = append(sections, Section{HeadingPath: "# " + title, Text: body})
	}

	var stack []heading
	for i, h := range heads {
		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)

		bodyEnd := len(src)
		if i+1 < len(heads) {
			bodyEnd = heads[i+1].start
		}
		body := ""
		if h.end < bodyEnd {
			body = strings.TrimSpace(string(src[h.end:bodyEnd]))
		}
		if body == "" {
			continue
		}
		sections = append(sections, Section{HeadingPath: headingPath(stack), Text: body})
	}

	return fit(sections)
}

func (c *Chunker) headings(src []byte) []heading {
	doc := c.md.Parser().Parse(text.NewReader(src))

	var heads []heading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		lines := h.Lines()
		parts := make([]string, 0, lines.Len())
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			parts = append(parts, strings.TrimSpace(string(seg.Value(src))))
		}

		first, last := lines.At(0), lines.At(lines.Len()-1)
		start := lineStart(src, first.Start)
		stop := last.Stop
		if stop > 0 && src[stop-1] == '\n' {
			stop--
		}
		end := lineEnd(src, stop)
		if !bytes.HasPrefix(bytes.TrimLeft(src[start:first.Start], " "), []byte("#")) && end < len(src) {
			// Setext heading: skip the underline
			end = lineEnd(src, end+1)
		}
		heads = append(heads, heading{level: h.Level, text: strings.Join(parts, " "), start: start, end: end})
	}
	return heads
}

func lineStart(src []byte, i int) int {
	for i > 0 && src[i-1] != '\n' {
		i--
	}
	return i
}

func lineEnd(src []byte, i int) int {
	if i >= len(src) {
		return len(src)
	}
	if j := bytes.IndexByte(src[i:], '\n'); j >= 0 {
		return i + j
	}
	return len(src)
}

func headingPath(stack []heading) string {
	parts := make([]string, len(stack))
	for i, h := range stack {
		parts[i] = strings.Repeat("#", h.level) + " " + h.text
	}
	return strings.Join(parts, " > ")
}

// fit applies the size bounds and resolves image references.
func fit(sections []Section) []Section {
	var out []Section
	for i := 0; i < len(sections); i++ {
		cur := sections[i]
		for utf8.RuneCountInString(cur.Text) < minChunkRunes && i+1 < len(sections) {
			merged := cur.Text + "\n\n" + sections[i+1].Text
			if utf8.RuneCountInString(merged) > maxChunkRunes {
				break
			}
			cur.Text = merged
			i++
		}
		out = append(out, splitSection(cur)...)
	}
	for i := range out {
		out[i].ImageID = imageID(out[i].Text)
	}
	return out
}

func splitSection(s Section) []Section {
	rest := []rune(s.Text)
	if len(rest) <= maxChunkRunes {
		return []Section{s}
	}

	var out []Section
	for len(rest) > 0 {
		cut := len(rest)
		if cut > maxChunkRunes {
			cut = maxChunkRunes
			window := string(rest[:maxChunkRunes])
			for _, sep := range []string{"\n\n", "\n", ". "} {
				if i := strings.LastIndex(window, sep); i > 0 {
					cut = utf8.RuneCountInString(window[:i+len(sep)])
					break
				}
			}
		}
		if piece := strings.TrimSpace(string(rest[:cut])); piece != "" {
			out = append(out, Section{HeadingPath: s.HeadingPath, Text: piece})
		}
		rest = rest[cut:]
	}
	return out
}

// imageID returns the first image destination of text that is not an
// absolute URL. Such images are served by the image store.
func imageID(text string) string {
	for _, m := range imageRe.FindAllStringSubmatch(text, -1) {
		dest := m[1]
		if strings.Contains(dest, "://") || strings.HasPrefix(dest, "data:") {
			continue
		}
		return strings.TrimLeft(strings.TrimPrefix(dest, "./"), "/")
	}
	return ""
}
