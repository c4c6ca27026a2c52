package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const verifierCookie = "propshield_pkce"

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.auth.SignUp(r.Context(), req.Email, req.Password, req.FullName, req.Phone)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.auth.SignOut(r.Context(), userFrom(r.Context()).ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"providers": s.auth.Providers()})
}

// handleProviderStart returns the provider consent URL. The PKCE verifier
// travels in a short-lived cookie scoped to the callback.
func (s *Server) handleProviderStart(w http.ResponseWriter, r *http.Request) {
	authz, err := s.auth.AuthorizeURL(chi.URLParam(r, "provider"), s.cfg.CallbackURL())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     verifierCookie,
		Value:    authz.Verifier,
		Path:     "/auth/callback",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, authz)
}

func (s *Server) handleProviderCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if msg := q.Get("error"); msg != "" {
		respondError(w, http.StatusUnauthorized, msg)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		respondError(w, http.StatusBadRequest, "missing code or state")
		return
	}
	cookie, err := r.Cookie(verifierCookie)
	if err != nil || cookie.Value == "" {
		respondError(w, http.StatusBadRequest, "sign-in was not started from this browser")
		return
	}
	provider, err := s.auth.ProviderFromState(state)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	sess, err := s.auth.ExchangeProvider(r.Context(), provider, code, state, cookie.Value, s.cfg.CallbackURL())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: verifierCookie, Path: "/auth/callback", MaxAge: -1})
	respondJSON(w, http.StatusOK, sess)
}
