package http

import (
	"net/http"
	"net/url"

	"github.com/fjod/go_storefront/internal/session"
)

type AuthHandler struct {
	session      Session
	redirectPath string
}

func NewAuthHandler(s Session, redirectPath string) *AuthHandler {
	return &AuthHandler{
		session:      s,
		redirectPath: redirectPath,
	}
}

// GET /auth/google
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.session.GoogleLoginURL(), http.StatusFound)
}

// GET /auth/callback
//
// The identity provider redirects here with the credentials in the query.
// The browser is sent on to redirectPath with those parameters removed.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	clean, err := h.session.HandleOAuthCallback(r.Context(), r.URL)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "oauth_failed", session.UserMessage(err))
		return
	}

	target := url.URL{Path: h.redirectPath, RawQuery: clean.RawQuery}
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
