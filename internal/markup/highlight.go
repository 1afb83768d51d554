package markup

import (
	"bytes"
	"html"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

const highlightStyle = "friendly"

// highlight renders source as chroma-classed HTML. The source arrives
// pre-escaped, so it is unescaped once here and re-escaped by chroma.
func highlight(source, lang string) string {
	code := unescape(source)

	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "<pre><code>" + shield(html.EscapeString(code)) + "</code></pre>"
	}

	var w bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.Format(&w, styles.Get(highlightStyle), iterator); err != nil {
		return "<pre><code>" + shield(html.EscapeString(code)) + "</code></pre>"
	}
	return shield(w.String())
}
