package controller

import (
	"errors"
	"io"
	"net/http"

	"babil/internal/markup"
	"babil/internal/models"
	"babil/internal/wiki"
)

const (
	searchLimit    = 50
	maxPreviewSize = 1 << 20
)

// Misc provides miscellaneous handlers
type Misc struct {
	View
	Engine    *wiki.Engine
	FeedLimit int
}

// Register registers the misc routes
func (m *Misc) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", m.home)
	mux.HandleFunc("POST /_preview", m.preview)
	mux.HandleFunc("GET /search", m.search)
	mux.HandleFunc("GET /random", m.random)
	mux.HandleFunc("GET /last_edits", m.lastEdits)
	mux.HandleFunc("GET /index", m.index)
	mux.HandleFunc("GET /faq", m.static("faq.html", "FAQ"))
	mux.HandleFunc("GET /rules", m.static("rules.html", "Règles"))
}

func (m *Misc) home(w http.ResponseWriter, r *http.Request) {
	count, err := m.Engine.Catalog.PageCount(r.Context())
	if err != nil {
		m.internal(w, r, err)
		return
	}
	data := m.data(r)
	data.Heading = "Accueil"
	data.PageCount = count
	m.render(w, http.StatusOK, "index.html", data)
}

// preview renders the request body without storing anything.
func (m *Misc) preview(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPreviewSize))
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusRequestEntityTooLarge)
		return
	}
	defer r.Body.Close()

	format := models.FormatMarkdown
	if f := r.URL.Query().Get("format"); f != "" {
		if format, err = markup.ParseFormat(f); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	out, err := m.Engine.Catalog.Preview(string(body), format)
	if err != nil {
		m.Logger.Error("preview failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, out.HTML)
}

func (m *Misc) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	results, err := m.Engine.Catalog.Search(r.Context(), query, searchLimit)
	if err != nil {
		m.internal(w, r, err)
		return
	}
	data := m.data(r)
	data.Heading = "Recherche"
	data.Query = query
	data.Results = results
	m.render(w, http.StatusOK, "search.html", data)
}

func (m *Misc) random(w http.ResponseWriter, r *http.Request) {
	name, err := m.Engine.Catalog.RandomPage(r.Context())
	if errors.Is(err, wiki.ErrEmptyCatalog) {
		m.fail(w, r, http.StatusNotFound, "Le wiki ne contient encore aucune page.")
		return
	}
	if err != nil {
		m.internal(w, r, err)
		return
	}
	http.Redirect(w, r, pageURL(name), http.StatusFound)
}

func (m *Misc) lastEdits(w http.ResponseWriter, r *http.Request) {
	feed, err := m.Engine.Feed.LastEdits(r.Context(), m.FeedLimit)
	if err != nil {
		m.internal(w, r, err)
		return
	}
	data := m.data(r)
	data.Heading = "Dernières modifications"
	data.Feed = feed
	m.render(w, http.StatusOK, "last_edits.html", data)
}

func (m *Misc) index(w http.ResponseWriter, r *http.Request) {
	groups, err := m.Engine.Catalog.GroupByInitial(r.Context())
	if err != nil {
		m.internal(w, r, err)
		return
	}
	data := m.data(r)
	data.Heading = "Index"
	data.Groups = groups
	m.render(w, http.StatusOK, "pages_index.html", data)
}

func (m *Misc) static(name, heading string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := m.data(r)
		data.Heading = heading
		m.render(w, http.StatusOK, name, data)
	}
}
