package controller

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"babil/internal/identity"
	"babil/internal/web/middleware"
	"babil/internal/web/viewmodels"
)

// View renders templates and the error pages shared by every controller.
type View struct {
	Templates map[string]*template.Template
	Gate      *identity.Gate
	Logger    *slog.Logger
}

func (v *View) render(w http.ResponseWriter, status int, name string, data viewmodels.PageData) {
	t, ok := v.Templates[name]
	if !ok {
		v.Logger.Error("missing template", "template", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		v.Logger.Error("render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (v *View) viewer(ctx context.Context, token string) viewmodels.Viewer {
	if token == "" {
		return viewmodels.Viewer{}
	}
	vw := viewmodels.Viewer{Token: token, Key: v.Gate.Key(token), LoggedIn: true}
	var err error
	if vw.CanWrite, err = v.Gate.IsWriteAllowed(ctx, token); err != nil {
		v.Logger.Warn("permission lookup failed", "error", err)
	}
	if vw.IsAdmin, err = v.Gate.IsAdmin(ctx, token); err != nil {
		v.Logger.Warn("permission lookup failed", "error", err)
	}
	return vw
}

// data starts the view model of a request.
func (v *View) data(r *http.Request) viewmodels.PageData {
	return viewmodels.PageData{Viewer: v.viewer(r.Context(), identity.TokenFrom(r.Context()))}
}

func (v *View) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	data := v.data(r)
	data.Heading = http.StatusText(status)
	data.Message = message
	v.render(w, status, "error.html", data)
}

func (v *View) internal(w http.ResponseWriter, r *http.Request, err error) {
	v.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	v.fail(w, r, http.StatusInternalServerError, "Une erreur interne est survenue.")
}

// NotFound renders the 404 page.
func (v *View) NotFound(w http.ResponseWriter, r *http.Request) {
	v.fail(w, r, http.StatusNotFound, "Cette page n'existe pas.")
}

func (v *View) deny(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, identity.ErrPermission) {
		v.internal(w, r, err)
		return
	}
	switch {
	case identity.TokenFrom(r.Context()) == "":
		v.fail(w, r, http.StatusForbidden, "Vous devez être connectés pour éditer la page.")
	case r.Method == http.MethodPost && r.PathValue("index") != "":
		v.fail(w, r, http.StatusForbidden, "Seuls les administrateurs peuvent restaurer une révision.")
	default:
		v.fail(w, r, http.StatusForbidden, "Vous n'êtes pas encore autorisés à éditer des pages.")
	}
}

func (v *View) require(capability identity.Capability) func(http.HandlerFunc) http.Handler {
	mw := middleware.Require(v.Gate, capability, v.deny)
	return func(h http.HandlerFunc) http.Handler {
		return mw(h)
	}
}

func (v *View) recordModification(ctx context.Context, token, pageName string) {
	if err := v.Gate.RecordModification(ctx, token, pageName); err != nil {
		v.Logger.Warn("record modification failed", "page", pageName, "error", err)
	}
}
