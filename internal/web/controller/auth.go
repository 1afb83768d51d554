package controller

import (
	"errors"
	"net/http"
	"net/url"

	"babil/internal/identity"
)

// Auth provides auth handlers
type Auth struct {
	View
	Sessions     *identity.Sessions
	ProfileLimit int
}

// Register registers the auth routes
func (a *Auth) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /login", a.loginGet)
	mux.HandleFunc("POST /login", a.loginPost)
	mux.HandleFunc("GET /logout", a.logout)
	mux.HandleFunc("GET /user/{key}", a.profile)
}

func profileURL(key string) string {
	return "/user/" + url.PathEscape(key)
}

func (a *Auth) loginGet(w http.ResponseWriter, r *http.Request) {
	data := a.data(r)
	if data.Viewer.LoggedIn {
		http.Redirect(w, r, profileURL(data.Viewer.Key), http.StatusFound)
		return
	}
	data.Heading = "Connexion"
	a.render(w, http.StatusOK, "login.html", data)
}

// loginPost logs in with the submitted token, registering it on first use.
func (a *Auth) loginPost(w http.ResponseWriter, r *http.Request) {
	token := r.PostFormValue("user")
	_, created, err := a.Gate.Login(r.Context(), token)
	if errors.Is(err, identity.ErrBlankToken) {
		data := a.data(r)
		data.Heading = "Connexion"
		data.Message = "Choisissez un identifiant."
		a.render(w, http.StatusBadRequest, "login.html", data)
		return
	}
	if err != nil {
		a.internal(w, r, err)
		return
	}

	if err := a.Sessions.SetToken(w, r, token); err != nil {
		a.internal(w, r, err)
		return
	}

	data := a.data(r)
	data.Viewer = a.viewer(r.Context(), token)
	data.Heading = "Connexion"
	if created {
		data.Message = "Votre compte utilisateur a été créé. Un administrateur doit le valider pour que vous puissiez aussi éditer des pages."
	} else {
		data.Message = "Connecté."
	}
	a.render(w, http.StatusOK, "login.html", data)
}

func (a *Auth) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Clear(w, r); err != nil {
		a.Logger.Warn("clear session", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *Auth) profile(w http.ResponseWriter, r *http.Request) {
	prof, err := a.Gate.Profile(r.Context(), r.PathValue("key"), a.ProfileLimit)
	if errors.Is(err, identity.ErrNotFound) {
		a.NotFound(w, r)
		return
	}
	if err != nil {
		a.internal(w, r, err)
		return
	}

	data := a.data(r)
	data.Heading = "Profil"
	data.Profile = prof
	a.render(w, http.StatusOK, "user.html", data)
}
