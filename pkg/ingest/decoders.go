package ingest

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// PlainTextDecoder passes UTF-8 text through unchanged.
type PlainTextDecoder struct{}

func (d *PlainTextDecoder) ContentTypes() []string {
	return []string{"text/plain", "text/csv", "application/json"}
}

func (d *PlainTextDecoder) Suffixes() []string {
	return []string{".txt", ".log", ".csv", ".json"}
}

func (d *PlainTextDecoder) Decode(data []byte, filename string) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.Errorf("%s is not valid UTF-8 text", filename)
	}
	return string(data), nil
}

var _ Decoder = (*PlainTextDecoder)(nil)

// HTMLDecoder extracts visible text from an HTML document, dropping script
// and style nodes.
type HTMLDecoder struct{}

func (d *HTMLDecoder) ContentTypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

func (d *HTMLDecoder) Suffixes() []string {
	return []string{".html", ".htm"}
}

func (d *HTMLDecoder) Decode(data []byte, filename string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrapf(err, "could not parse HTML in %s", filename)
	}

	doc.Find("script, style, noscript").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		sb.WriteString(sel.Text())
	})
	text := sb.String()
	if text == "" {
		text = doc.Text()
	}

	return collapseWhitespace(text), nil
}

var _ Decoder = (*HTMLDecoder)(nil)

// MarkdownDecoder walks the goldmark AST and collects the raw text segments,
// stripping the markup.
type MarkdownDecoder struct{}

func (d *MarkdownDecoder) ContentTypes() []string {
	return []string{"text/markdown"}
}

func (d *MarkdownDecoder) Suffixes() []string {
	return []string{".md", ".markdown"}
}

func (d *MarkdownDecoder) Decode(data []byte, filename string) (string, error) {
	parser := goldmark.New().Parser()
	root := parser.Parse(gmtext.NewReader(data))

	var sb strings.Builder
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Paragraph, *ast.Heading, *ast.ListItem:
				sb.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			sb.Write(t.Segment.Value(data))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "could not walk markdown in %s", filename)
	}

	return strings.TrimSpace(sb.String()), nil
}

var _ Decoder = (*MarkdownDecoder)(nil)

// RawTextDecoder is the generic byte-to-text fallback: it keeps whatever
// valid UTF-8 the payload contains.
type RawTextDecoder struct{}

func (d *RawTextDecoder) ContentTypes() []string {
	return nil
}

func (d *RawTextDecoder) Suffixes() []string {
	return nil
}

func (d *RawTextDecoder) Decode(data []byte, filename string) (string, error) {
	return strings.ToValidUTF8(string(data), ""), nil
}

var _ Decoder = (*RawTextDecoder)(nil)

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
