package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"time"
)

//go:embed static
var staticFiles embed.FS

//go:embed templates
var templateFiles embed.FS

func StaticFileServer() http.Handler {
	fsys, _ := fs.Sub(staticFiles, "static")
	return http.FileServer(http.FS(fsys))
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		return t.Local().Format("02/01/2006 15:04")
	},
	"prev": func(i int) int { return i - 1 },
}

// parseTemplates builds one isolated template set per page, each sharing the
// layout.
func parseTemplates() (map[string]*template.Template, error) {
	pages, err := fs.Glob(templateFiles, "templates/*.html")
	if err != nil {
		return nil, err
	}
	templates := make(map[string]*template.Template)
	for _, page := range pages {
		name := path.Base(page)
		if name == "layout.html" {
			continue
		}
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFiles, "templates/layout.html", page)
		if err != nil {
			return nil, err
		}
		templates[name] = t
	}
	return templates, nil
}
