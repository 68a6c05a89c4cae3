// Package httpapi exposes the gateway operations over HTTP. Every response is a JSON envelope
// carrying an apicodes status string; failures also carry per field messages when a form was
// rejected.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"igstore/apicodes"
	log "igstore/cloudlog"
	"igstore/gaterr"
	"igstore/media"
	"igstore/profile"
	"igstore/session"

	"github.com/gorilla/mux"
)

// defaultMaxUploadBytes bounds multipart bodies when Options.MaxUploadBytes is unset.
const defaultMaxUploadBytes = 20 << 20

// Options tune the HTTP surface.
type Options struct {
	// AllowOrigin is echoed in Access-Control-Allow-Origin. Empty disables CORS headers.
	AllowOrigin    string
	MaxUploadBytes int64
	// Events serves GET /events. It is usually a stream.Hub handler.
	Events http.Handler
}

// Server routes requests to the session orchestrator, the profile store and the media gateway.
type Server struct {
	sessions *session.Orchestrator
	profiles *profile.Store
	media    *media.Gateway
	opts     Options
	router   *mux.Router
}

// New builds the router.
func New(sessions *session.Orchestrator, profiles *profile.Store, gallery *media.Gateway, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		sessions: sessions,
		profiles: profiles,
		media:    gallery,
		opts:     opts,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.cors)

	// Routes acting on the signed in account require its ID token.
	r.Handle("/session", s.authed(s.handleSession)).Methods(http.MethodGet)
	r.HandleFunc("/signup", s.handleSignUp).Methods(http.MethodPost)
	r.HandleFunc("/signin", s.handleSignIn).Methods(http.MethodPost)
	r.Handle("/signout", s.authed(s.handleSignOut)).Methods(http.MethodPost)
	r.Handle("/password-reset", s.authed(s.handlePasswordReset)).Methods(http.MethodPost)
	r.Handle("/account", s.authed(s.handleDeleteAccount)).Methods(http.MethodDelete)

	r.HandleFunc("/profiles", s.handleProfileByEmail).Methods(http.MethodGet).Queries("email", "{email}")
	r.HandleFunc("/profiles/{id}", s.handleProfile).Methods(http.MethodGet)
	r.HandleFunc("/profiles/{id}/gallery", s.handleListGallery).Methods(http.MethodGet)
	r.Handle("/profile", s.authed(s.handleEditProfile)).Methods(http.MethodPut)

	r.Handle("/gallery", s.authed(s.handleStoreGallery)).Methods(http.MethodPost)
	r.Handle("/gallery/{id}", s.authed(s.handleGetGallery)).Methods(http.MethodGet)
	r.Handle("/gallery/{id}", s.authed(s.handleUpdateGallery)).Methods(http.MethodPatch)
	r.Handle("/gallery/{id}", s.authed(s.handleDeleteGallery)).Methods(http.MethodDelete)

	if s.opts.Events != nil {
		r.Handle("/events", s.requireSession(s.opts.Events)).Methods(http.MethodGet)
	}
	// Middleware only runs on matched routes, so preflight requests get CORS headers here.
	r.MethodNotAllowedHandler = s.cors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusMethodNotAllowed, response{Status: apicodes.StatusEndpointNotValid})
	}))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, response{Status: apicodes.StatusEndpointNotValid})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AllowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.opts.AllowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return s.requireSession(h)
}

// requireSession rejects callers that do not present the ID token of the signed in identity.
// With nobody signed in the request passes and the operation itself reports NotAuthenticated.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := s.sessions.Identity()
		if current == nil {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(current.IDToken)) != 1 {
			respondError(w, r, gaterr.E(gaterr.NotAuthenticated, "httpapi.requireSession", errSessionToken))
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errSessionToken = errors.New("missing or stale session token")

// bearerToken reads the Authorization header, falling back to the access_token query parameter
// since browsers cannot set headers on websocket upgrades.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return r.URL.Query().Get("access_token")
}

// response is the envelope of every JSON reply.
type response struct {
	OK      bool                `json:"ok"`
	Status  string              `json:"status"`
	Message string              `json:"message,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
	Data    interface{}         `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func respondOK(w http.ResponseWriter, code int, data interface{}) {
	writeJSON(w, code, response{OK: true, Status: apicodes.StatusOK, Data: data})
}

// respondError logs err and renders it with the status string of its kind.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := apicodes.ForError(err)
	log.Printf("%s %s: %d %s: %v", r.Method, r.URL.Path, code, status, err)

	body := response{Status: status, Message: gaterr.KindOf(err).String()}
	var ge *gaterr.Error
	if errors.As(err, &ge) {
		body.Fields = ge.Fields
		if _, msg := ge.FirstField(); msg != "" {
			body.Message = msg
		}
	}
	if errors.Is(err, gaterr.ErrUpload) {
		body.Data = map[string]string{"uploadCode": string(media.UploadCodeOf(err))}
	}
	if status == apicodes.StatusInternal {
		body.Message = "internal error"
	}
	writeJSON(w, code, body)
}

// decodeJSON reads the request body into v. A malformed body is a Validation error.
func decodeJSON(r *http.Request, op string, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return gaterr.E(gaterr.Validation, op, err)
	}
	return nil
}
