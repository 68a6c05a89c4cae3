package httpapi

import (
	"net/http"

	"igstore/collections"
	"igstore/session"
)

// grant answers a successful sign-up or sign-in: the profile and the ID token the caller
// presents on session routes.
type grant struct {
	*collections.UserProfile
	IDToken string `json:"idToken"`
}

func (s *Server) grant(p *collections.UserProfile) grant {
	g := grant{UserProfile: p}
	if id := s.sessions.Identity(); id != nil {
		g.IDToken = id.IDToken
	}
	return g
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, s.sessions.Status())
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var form session.SignUpForm
	if err := decodeJSON(r, "httpapi.SignUp", &form); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.sessions.SignUp(r.Context(), form)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, s.grant(p))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var form session.SignInForm
	if err := decodeJSON(r, "httpapi.SignIn", &form); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.sessions.SignIn(r.Context(), form)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, s.grant(p))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.sessions.SignOut()
	respondOK(w, http.StatusOK, s.sessions.Status())
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	// An empty body resets the password of the signed in user.
	if r.ContentLength != 0 {
		if err := decodeJSON(r, "httpapi.PasswordReset", &body); err != nil {
			respondError(w, r, err)
			return
		}
	}
	if err := s.sessions.ResetPassword(r.Context(), body.Email); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusAccepted, nil)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.DeleteAccount(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, s.sessions.Status())
}
