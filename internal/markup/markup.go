// Package markup turns author markup into sanitized HTML and a plain-text
// surrogate used for search.
package markup

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/niklasfasching/go-org/org"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"

	"babil/internal/models"
)

// ErrUnknownFormat is returned for a markup format the renderer does not speak.
var ErrUnknownFormat = errors.New("unknown markup format")

// Rendered is the output of a single render.
type Rendered struct {
	HTML      string
	PlainText string
}

// Renderer converts raw markup. It holds no per-call state and is safe for
// concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// New builds a renderer with GFM extensions and raw HTML disabled.
func New() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Linkify,
			extension.TaskList,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{}, 200)),
		),
	)
	return &Renderer{md: md}
}

// Render escapes raw, interprets it as format and returns the HTML along with
// its tag-stripped text.
func (r *Renderer) Render(raw string, format models.Format) (Rendered, error) {
	escaped := escape(raw)

	var out string
	switch format {
	case models.FormatMarkdown, "":
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(escaped), &buf); err != nil {
			return Rendered{}, fmt.Errorf("markdown render: %w", err)
		}
		out = buf.String()
	case models.FormatOrg:
		s, err := org.New().Parse(strings.NewReader(escaped), "").Write(newOrgWriter())
		if err != nil {
			return Rendered{}, fmt.Errorf("org render: %w", err)
		}
		out = s
	default:
		return Rendered{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	out = foldEscapes(out)
	return Rendered{HTML: out, PlainText: StripTags(out)}, nil
}

// ParseFormat maps a user supplied format name onto a known Format.
func ParseFormat(name string) (models.Format, error) {
	switch models.Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", models.FormatMarkdown, "md":
		return models.FormatMarkdown, nil
	case models.FormatOrg:
		return models.FormatOrg, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

var tagPattern = regexp.MustCompile(`<[^<]+?>`)

// StripTags removes every non-greedy <...> run. Angle brackets nested inside
// attribute values are not understood; stored plain text depends on that.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// Quotes are left alone so markdown link titles survive.
var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return escaper.Replace(s)
}

var unescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// unescape undoes escape and nothing else.
func unescape(s string) string {
	return unescaper.Replace(s)
}

// Renderers that escape text on their own turn the pre-escaped entities into
// &amp;lt; and friends. Folding them back only ever yields entities.
var folder = strings.NewReplacer("&amp;lt;", "&lt;", "&amp;gt;", "&gt;", "&amp;amp;", "&amp;")

func foldEscapes(s string) string {
	return folder.Replace(s)
}

var shielder = strings.NewReplacer("&amp;", "&amp;amp;")

// shield protects already correct HTML, such as highlighted code, from
// foldEscapes.
func shield(s string) string {
	return shielder.Replace(s)
}
