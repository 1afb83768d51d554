package controller

import (
	"errors"
	"html/template"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"babil/internal/audio"
	"babil/internal/identity"
	"babil/internal/markup"
	"babil/internal/models"
	"babil/internal/wiki"
	"babil/internal/web/viewmodels"
)

var formats = []models.Format{models.FormatMarkdown, models.FormatOrg}

// Page provides page handlers
type Page struct {
	View
	Engine *wiki.Engine
	// Sink serves audio artifacts. Nil when audio is disabled.
	Sink *audio.FileSink
}

// Register registers the page routes
func (p *Page) Register(mux *http.ServeMux) {
	write := p.require(identity.CapWrite)
	mux.HandleFunc("GET /page/{name}", p.view)
	mux.Handle("GET /page/create", write(p.new))
	mux.Handle("POST /page/create", write(p.create))
	mux.Handle("GET /page/{name}/edit", write(p.edit))
	mux.Handle("POST /page/{name}/edit", write(p.save))
	mux.HandleFunc("GET /page/{name}/history", p.history)
	mux.Handle("POST /page/{name}/restore/{index}", p.require(identity.CapRestore)(p.restore))
	mux.HandleFunc("GET /page/{name}/diff", p.diff)
	mux.HandleFunc("GET /page/{name}/audio", p.audio)
}

func pageURL(name string) string {
	return "/page/" + wiki.NormalizeName(name)
}

// load fetches the page named in the path, answering 404 or 500 itself.
func (p *Page) load(w http.ResponseWriter, r *http.Request) (*models.Page, bool) {
	pg, err := p.Engine.Catalog.GetPage(r.Context(), r.PathValue("name"))
	if errors.Is(err, wiki.ErrNotFound) {
		p.NotFound(w, r)
		return nil, false
	}
	if err != nil {
		p.internal(w, r, err)
		return nil, false
	}
	return pg, true
}

func (p *Page) view(w http.ResponseWriter, r *http.Request) {
	pg, ok := p.load(w, r)
	if !ok {
		return
	}

	data := p.data(r)
	data.Heading = pg.Title
	data.Page = pg
	// Rendered with escaping applied before markup, so it is safe as is.
	data.Content = template.HTML(pg.CurrentHTML)
	if p.Sink != nil {
		_, err := p.Sink.Stat(pg.Name)
		data.HasAudio = err == nil
	}
	p.render(w, http.StatusOK, "page.html", data)
}

func (p *Page) new(w http.ResponseWriter, r *http.Request) {
	data := p.data(r)
	data.Heading = "Nouvelle page"
	data.Form = viewmodels.PageForm{Name: r.URL.Query().Get("name"), Format: models.FormatMarkdown}
	data.Formats = formats
	p.render(w, http.StatusOK, "create.html", data)
}

func readForm(r *http.Request) (viewmodels.PageForm, error) {
	if err := r.ParseForm(); err != nil {
		return viewmodels.PageForm{}, err
	}
	form := viewmodels.PageForm{
		Name:     r.PostFormValue("name"),
		Title:    r.PostFormValue("title"),
		Markdown: r.PostFormValue("content"),
		Format:   models.FormatMarkdown,
	}
	if f := r.PostFormValue("format"); f != "" {
		format, err := markup.ParseFormat(f)
		if err != nil {
			return form, err
		}
		form.Format = format
	}
	return form, nil
}

func blank(values ...string) bool {
	return slices.ContainsFunc(values, func(s string) bool { return strings.TrimSpace(s) == "" })
}

func (p *Page) create(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		p.fail(w, r, http.StatusBadRequest, "Formulaire invalide.")
		return
	}

	redisplay := func(status int, message string) {
		data := p.data(r)
		data.Heading = "Nouvelle page"
		data.Form = form
		data.Formats = formats
		data.Message = message
		p.render(w, status, "create.html", data)
	}
	if blank(form.Name, form.Title, form.Markdown) {
		redisplay(http.StatusBadRequest, "Le nom de page, titre ou le contenu ne doivent être vides.")
		return
	}

	token := identity.TokenFrom(r.Context())
	pg, err := p.Engine.Catalog.CreatePage(r.Context(), wiki.CreatePageRequest{
		Name:     form.Name,
		Title:    form.Title,
		Markdown: form.Markdown,
		Editor:   p.Gate.Key(token),
		Format:   form.Format,
	})
	switch {
	case errors.Is(err, wiki.ErrValidation):
		redisplay(http.StatusBadRequest, "Le nom de la page ne doit contenir que des lettres et des tirets du bas.")
		return
	case errors.Is(err, wiki.ErrConflict):
		redisplay(http.StatusConflict, "Une page porte déjà ce nom.")
		return
	case err != nil:
		p.internal(w, r, err)
		return
	}

	p.recordModification(r.Context(), token, pg.Name)
	http.Redirect(w, r, pageURL(pg.Name), http.StatusSeeOther)
}

func (p *Page) edit(w http.ResponseWriter, r *http.Request) {
	pg, ok := p.load(w, r)
	if !ok {
		return
	}
	data := p.data(r)
	data.Heading = pg.Title
	data.Page = pg
	data.Form = viewmodels.PageForm{Name: pg.Name, Title: pg.Title, Markdown: pg.CurrentMarkdown, Format: pg.Format}
	data.Formats = formats
	p.render(w, http.StatusOK, "edit.html", data)
}

func (p *Page) save(w http.ResponseWriter, r *http.Request) {
	pg, ok := p.load(w, r)
	if !ok {
		return
	}
	form, err := readForm(r)
	if err != nil {
		p.fail(w, r, http.StatusBadRequest, "Formulaire invalide.")
		return
	}
	form.Name = pg.Name

	redisplay := func(status int, message string) {
		data := p.data(r)
		data.Heading = pg.Title
		data.Page = pg
		data.Form = form
		data.Formats = formats
		data.Message = message
		p.render(w, status, "edit.html", data)
	}
	if blank(form.Title, form.Markdown) {
		redisplay(http.StatusBadRequest, "Le titre ni le contenu ne doivent être vides.")
		return
	}

	token := identity.TokenFrom(r.Context())
	_, err = p.Engine.Revisions.Commit(r.Context(), wiki.CommitRequest{
		Page:     pg.Name,
		Title:    form.Title,
		Markdown: form.Markdown,
		Editor:   p.Gate.Key(token),
		Format:   form.Format,
	})
	switch {
	case errors.Is(err, wiki.ErrValidation):
		redisplay(http.StatusBadRequest, "Formulaire invalide.")
		return
	case errors.Is(err, wiki.ErrNotFound):
		p.NotFound(w, r)
		return
	case err != nil:
		p.internal(w, r, err)
		return
	}

	p.recordModification(r.Context(), token, pg.Name)
	http.Redirect(w, r, pageURL(pg.Name), http.StatusSeeOther)
}

func (p *Page) history(w http.ResponseWriter, r *http.Request) {
	pg, ok := p.load(w, r)
	if !ok {
		return
	}

	rows := make([]viewmodels.RevisionRow, 0, len(pg.History))
	for i := len(pg.History) - 1; i >= 0; i-- {
		rev := pg.History[i]
		rows = append(rows, viewmodels.RevisionRow{
			Index:     rev.Index,
			Title:     rev.Title,
			Editor:    rev.Editor,
			CreatedAt: rev.CreatedAt,
			Current:   i == len(pg.History)-1,
		})
	}

	data := p.data(r)
	data.Heading = pg.Title
	data.Page = pg
	data.Revisions = rows
	p.render(w, http.StatusOK, "history.html", data)
}

func (p *Page) restore(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		p.NotFound(w, r)
		return
	}
	exists, err := p.Engine.Catalog.PageExists(r.Context(), name)
	if err != nil {
		p.internal(w, r, err)
		return
	}
	if !exists {
		p.NotFound(w, r)
		return
	}

	// Indexes come from the history page, so a bad one is our failure.
	token := identity.TokenFrom(r.Context())
	if _, err := p.Engine.Revisions.Restore(r.Context(), name, index, p.Gate.Key(token)); err != nil {
		p.internal(w, r, err)
		return
	}

	p.recordModification(r.Context(), token, wiki.NormalizeName(name))
	http.Redirect(w, r, pageURL(name), http.StatusSeeOther)
}

func (p *Page) diff(w http.ResponseWriter, r *http.Request) {
	pg, ok := p.load(w, r)
	if !ok {
		return
	}

	to := len(pg.History) - 1
	from := to - 1
	if v := r.URL.Query().Get("to"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(w, r, http.StatusBadRequest, "Révision 'to' invalide.")
			return
		}
		to = n
	}
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(w, r, http.StatusBadRequest, "Révision 'from' invalide.")
			return
		}
		from = n
	} else if from < 0 {
		from = 0
	}

	segments, err := p.Engine.Revisions.Diff(r.Context(), pg.Name, from, to)
	if errors.Is(err, wiki.ErrNotFound) {
		p.NotFound(w, r)
		return
	}
	if err != nil {
		p.internal(w, r, err)
		return
	}

	data := p.data(r)
	data.Heading = pg.Title
	data.Page = pg
	data.Diff = segments
	data.DiffFrom = from
	data.DiffTo = to
	p.render(w, http.StatusOK, "diff.html", data)
}

// audio streams the artifact. A page without one is a plain 404; the page
// view simply hides the player.
func (p *Page) audio(w http.ResponseWriter, r *http.Request) {
	if p.Sink == nil {
		http.NotFound(w, r)
		return
	}
	if !wiki.ValidName(r.PathValue("name")) {
		http.NotFound(w, r)
		return
	}
	name := wiki.NormalizeName(r.PathValue("name"))
	f, modtime, err := p.Sink.Open(name)
	if errors.Is(err, audio.ErrNoArtifact) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		p.Logger.Error("open audio artifact", "page", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeContent(w, r, name+".wav", modtime, f)
}
