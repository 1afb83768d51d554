package markup

import (
	"fmt"
	"html"
	"strings"

	"github.com/niklasfasching/go-org/org"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// orgWriter is go-org's HTML writer with link output tightened: #+LINK
// abbreviations are not expanded and dangerous URLs are blanked, the way
// goldmark treats markdown links.
type orgWriter struct {
	*org.HTMLWriter
}

func newOrgWriter() *orgWriter {
	w := &orgWriter{HTMLWriter: org.NewHTMLWriter()}
	w.ExtendingWriter = w
	w.HighlightCodeBlock = func(source, lang string, inline bool, params map[string]string) string {
		if inline {
			return "<code>" + shield(html.EscapeString(unescape(source))) + "</code>"
		}
		return highlight(source, lang)
	}
	return w
}

func (w *orgWriter) WriteRegularLink(l org.RegularLink) {
	url := safeURL(l.URL)

	switch l.Kind() {
	case "image":
		if l.Description == nil {
			w.WriteString(fmt.Sprintf(`<img src="%s" alt="%s" title="%s" />`, url, url, url))
			return
		}
		src := safeURL(strings.TrimPrefix(org.String(l.Description...), "file:"))
		w.WriteString(fmt.Sprintf(`<a href="%s"><img src="%s" alt="%s" /></a>`, url, src, src))
	case "video":
		if l.Description == nil {
			w.WriteString(fmt.Sprintf(`<video src="%s" title="%s">%s</video>`, url, url, url))
			return
		}
		src := safeURL(strings.TrimPrefix(org.String(l.Description...), "file:"))
		w.WriteString(fmt.Sprintf(`<a href="%s"><video src="%s" title="%s"></video></a>`, url, src, src))
	default:
		description := url
		if l.Description != nil {
			description = w.WriteNodesAsString(l.Description...)
		}
		w.WriteString(fmt.Sprintf(`<a href="%s">%s</a>`, url, description))
	}
}

// safeURL turns a pre-escaped link target into an attribute value, or ""
// when the target could run script.
func safeURL(escaped string) string {
	target := unescape(escaped)
	compact := strings.Map(func(r rune) rune {
		if r <= ' ' {
			return -1
		}
		return r
	}, target)
	if goldmarkhtml.IsDangerousURL([]byte(compact)) {
		return ""
	}
	return shield(html.EscapeString(target))
}
