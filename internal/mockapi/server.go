// Package mockapi is an in-memory stand-in for the marketplace backend. It serves
// every catalog resource under the same paths the real API uses, plus the staff
// login endpoints, so the dashboard can run and be tested without the real service.
package mockapi

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/record"
)

const (
	maxRequestSize = 32 << 20
	usersResource  = "users"
)

type Options struct {
	// RequireAuth rejects collection requests without a token issued by /auth/login.
	RequireAuth bool
	// Unique lists fields per resource that must not repeat.
	Unique map[string][]string
}

// DefaultUnique mirrors the constraints of the real backend.
var DefaultUnique = map[string][]string{usersResource: {"email"}}

type fault struct {
	status  int
	message string
}

type Server struct {
	store   *Store
	catalog *catalog.Catalog
	opts    Options

	mu     sync.Mutex
	tokens map[string]string
	faults map[string]fault
}

func New(store *Store, cat *catalog.Catalog, opts Options) *Server {
	if opts.Unique == nil {
		opts.Unique = DefaultUnique
	}
	for _, res := range cat.Resources {
		store.Define(res.Name, res.IDField, opts.Unique[res.Name]...)
	}
	return &Server{
		store:   store,
		catalog: cat,
		opts:    opts,
		tokens:  make(map[string]string),
		faults:  make(map[string]fault),
	}
}

func (s *Server) Store() *Store {
	return s.store
}

// Fail makes the next request with method against resource reply status with
// message instead of touching the store.
func (s *Server) Fail(method, resource string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+resource] = fault{status: status, message: message}
}

func (s *Server) takeFault(method, resource string) (fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + resource
	f, ok := s.faults[key]
	if ok {
		delete(s.faults, key)
	}
	return f, ok
}

// IssueToken registers a bearer token for the user with userID.
func (s *Server) IssueToken(userID string) string {
	token := uuid.Must(uuid.NewV4()).String()
	s.mu.Lock()
	s.tokens[token] = userID
	s.mu.Unlock()
	return token
}

func (s *Server) userForToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	return id, ok
}

func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestSizeLimit(maxRequestSize))

	router.Post("/auth/login", s.handleLogin)
	router.Get("/auth/user", s.handleCurrentUser)

	router.Group(func(r chi.Router) {
		if s.opts.RequireAuth {
			r.Use(s.requireToken)
		}
		for _, res := range s.catalog.Resources {
			s.mount(r, res)
		}
	})

	return router
}

func (s *Server) mount(r chi.Router, res *catalog.Resource) {
	r.Get("/"+res.ListPath(), s.handleList(res))
	r.Get("/"+res.Endpoint+"/{id}", s.handleGet(res))
	r.Post("/"+res.CreatePath(), s.handleCreate(res))
	r.Patch("/"+idPattern(res.Paths.Update, res.Endpoint), s.handleUpdate(res))
	r.Delete("/"+idPattern(res.Paths.Delete, res.Endpoint), s.handleDelete(res))
}

// idPattern is the route of a single record under the override path, or the
// endpoint when there is none.
func idPattern(override, endpoint string) string {
	if override != "" {
		return override + "/{id}"
	}
	return endpoint + "/{id}"
}

// recordID is the unescaped {id} segment of the request path.
func recordID(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func requestSizeLimit(maxSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.userForToken(r); !ok {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoData):
		writeError(w, http.StatusBadRequest, "No data provided")
	default:
		zap.S().Errorw("Unhandled store error", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) injected(w http.ResponseWriter, r *http.Request, res *catalog.Resource) bool {
	f, ok := s.takeFault(r.Method, res.Name)
	if !ok {
		return false
	}
	if f.status == http.StatusNoContent {
		w.WriteHeader(f.status)
		return true
	}
	if f.message == "" {
		w.WriteHeader(f.status)
		return true
	}
	writeError(w, f.status, f.message)
	return true
}

func (s *Server) handleList(res *catalog.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.injected(w, r, res) {
			return
		}
		writeJSON(w, http.StatusOK, s.store.List(res.Name))
	}
}

func (s *Server) handleGet(res *catalog.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.injected(w, r, res) {
			return
		}
		rec, err := s.store.Get(res.Name, recordID(r))
		if err != nil {
			s.handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleCreate(res *catalog.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if s.injected(w, r, res) {
			return
		}
		body, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rec, err := s.store.Create(res.Name, body)
		if err != nil {
			s.handleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func (s *Server) handleUpdate(res *catalog.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if s.injected(w, r, res) {
			return
		}
		body, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rec, err := s.store.Update(res.Name, recordID(r), body)
		if err != nil {
			s.handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleDelete(res *catalog.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.injected(w, r, res) {
			return
		}
		if err := s.store.Delete(res.Name, recordID(r)); err != nil {
			s.handleError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeBody reads a JSON or multipart body into a record. Uploaded files are
// stored as their public path.
func decodeBody(r *http.Request) (record.Record, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxRequestSize); err != nil {
			return nil, err
		}
		rec := record.Record{}
		for k, vs := range r.MultipartForm.Value {
			if len(vs) > 0 {
				rec[k] = vs[0]
			}
		}
		for k, fhs := range r.MultipartForm.File {
			if len(fhs) > 0 {
				rec[k] = "/uploads/" + fhs[0].Filename
			}
		}
		return rec, nil
	}

	rec := record.Record{}
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	return rec, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, ok := s.store.Find(usersResource, "email", req.Email)
	if !ok || user["password"] != req.Password || req.Password == "" {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	id, _ := user.IDOf(s.store.idFieldOf(usersResource))

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  s.IssueToken(id),
		"refresh_token": uuid.Must(uuid.NewV4()).String(),
		"token_type":    "bearer",
	})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userForToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	user, err := s.store.Get(usersResource, id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	delete(user, "password")
	writeJSON(w, http.StatusOK, user)
}
