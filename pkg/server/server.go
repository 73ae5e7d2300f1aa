package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/categorisation/pkg/castlight"
	"github.com/yurifrl/categorisation/pkg/catalog"
	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/executors"
	"github.com/yurifrl/categorisation/pkg/records"
	"github.com/yurifrl/categorisation/pkg/result"
	"github.com/yurifrl/categorisation/pkg/tink"
)

const maxUpload = 32 << 20

// Server exposes the executor actions as JSON endpoints.
type Server struct {
	config      *config.Config
	logger      *log.Logger
	mux         *http.ServeMux
	executor    *executors.Executor
	categoriser *castlight.Categoriser
	files       sync.Map
}

// New creates a new HTTP server
func New(config *config.Config, logger *log.Logger, executor *executors.Executor, categoriser *castlight.Categoriser) *Server {
	s := &Server{
		config:      config,
		logger:      logger,
		mux:         http.NewServeMux(),
		executor:    executor,
		categoriser: categoriser,
	}
	s.setupRoutes()
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/ping", s.withLogging(s.handlePing))
	s.mux.HandleFunc("/api/categories", s.withLogging(s.handleCategories))
	s.mux.HandleFunc("/api/categorise", s.withLogging(s.handleCategorise))
	s.mux.HandleFunc("/api/files/", s.withLogging(s.handleFiles))
	s.mux.HandleFunc("/api/users/activate", s.withLogging(s.handleActivateUsers))
	s.mux.HandleFunc("/api/users/delete", s.withLogging(s.handleDeleteUsers))
	s.mux.HandleFunc("/api/users/exists", s.withLogging(s.handleUserExists))
	s.mux.HandleFunc("/api/accounts", s.withLogging(s.handleListAccounts))
}

// filter reads ?endpoint=, ?important= and ?exceptions= from the query.
func filter(r *http.Request) result.Filter {
	q := r.URL.Query()
	return result.Filter{
		Endpoint:   q.Get("endpoint"),
		Important:  q.Get("important") == "true",
		Exceptions: q.Get("exceptions") == "true",
	}
}

// respondSequence reports seq. The status is "success" when every call
// succeeded, "warning" otherwise and "error" when extra carries an error.
func (s *Server) respondSequence(w http.ResponseWriter, r *http.Request, seq *result.Sequence, extra map[string]any) {
	status := "success"
	if seq.Status() != result.Success {
		status = "warning"
	}
	if _, failed := extra["error"]; failed {
		status = "error"
	}
	body := map[string]any{
		"status":   status,
		"sequence": seq.View(filter(r)),
	}
	for k, v := range extra {
		body[k] = v
	}
	if err := s.writeJSON(w, http.StatusOK, body); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	s.respondSequence(w, r, s.executor.TestConnectivity(r.Context()), nil)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	s.respondSequence(w, r, s.executor.ListCategories(r.Context(), r.URL.Query().Get("locale")), nil)
}

// upload reads the multipart file field and returns its bytes and name.
func (s *Server) upload(r *http.Request, field string) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

func (s *Server) handleCategorise(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	data, name, err := s.upload(r, "transactions")
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "transactions file required", err)
		return
	}

	fields := s.categoriser.Fields()
	rows, err := records.Parse(data, name, fields.Request, s.config.Delimiter())
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to read transactions", err)
		return
	}

	seq, out, err := s.categoriser.Categorise(r.Context(), rows)
	if errors.Is(err, castlight.ErrDryRun) {
		s.respondSequence(w, r, seq, map[string]any{"rows": 0})
		return
	}
	if err != nil {
		s.logger.Error("categorisation failed", "file", name, "err", err)
		s.respondSequence(w, r, seq, map[string]any{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := records.WriteCSV(&buf, out, fields.Output(), s.config.Delimiter()); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to write result", err)
		return
	}
	filename := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)) + "-categorised.csv"
	s.files.Store(filename, buf.Bytes())
	s.logger.Info("categorised upload", "file", name, "rows", len(out))

	s.respondSequence(w, r, seq, map[string]any{"file": filename, "rows": len(out)})
}

// source reads an uploaded user file into an in-memory source.
func (s *Server) source(r *http.Request) (records.Source, error) {
	data, name, err := s.upload(r, "users")
	if err != nil {
		return nil, err
	}
	recs, err := records.Parse(data, name, catalog.Users.Input, s.config.Delimiter())
	if err != nil {
		return nil, err
	}
	return records.StaticSource{catalog.UserEntity: recs}, nil
}

func (s *Server) handleActivateUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	src, err := s.source(r)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "users file required", err)
		return
	}
	seq, err := s.executor.WithSource(src).ActivateUsers(r.Context())
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "activation failed", err)
		return
	}
	s.respondSequence(w, r, seq, nil)
}

func (s *Server) handleDeleteUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	if user := r.URL.Query().Get("user"); user != "" {
		seq, err := s.executor.DeleteUser(r.Context(), user)
		if err != nil && !errors.Is(err, tink.ErrUserNotFound) {
			s.respondError(w, r, http.StatusBadGateway, "delete failed", err)
			return
		}
		s.respondSequence(w, r, seq, map[string]any{"found": err == nil})
		return
	}

	src, err := s.source(r)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "users file or user parameter required", err)
		return
	}
	seq, err := s.executor.WithSource(src).DeleteUsers(r.Context())
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "deletion failed", err)
		return
	}
	s.respondSequence(w, r, seq, nil)
}

func (s *Server) handleUserExists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	user := r.URL.Query().Get("user")
	if user == "" {
		s.respondError(w, r, http.StatusBadRequest, "user required", nil)
		return
	}
	exists, seq, err := s.executor.UserExists(r.Context(), user)
	if err != nil {
		s.respondError(w, r, http.StatusBadGateway, "could not determine user", err)
		return
	}
	s.respondSequence(w, r, seq, map[string]any{"exists": exists})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	user := r.URL.Query().Get("user")
	if user == "" {
		s.respondError(w, r, http.StatusBadRequest, "user required", nil)
		return
	}
	seq, resp, err := s.executor.ListAccounts(r.Context(), user)
	if errors.Is(err, tink.ErrUserNotFound) {
		s.respondError(w, r, http.StatusNotFound, "user does not exist", err)
		return
	}
	var accounts []map[string]any
	if resp != nil {
		accounts = resp.Accounts
	}
	s.respondSequence(w, r, seq, map[string]any{"accounts": accounts})
}

// handleFiles serves a categorised CSV produced by a previous upload.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimPrefix(r.URL.Path, "/api/files/")
	if filename == "" {
		s.respondError(w, r, http.StatusBadRequest, "filename required", nil)
		return
	}

	value, ok := s.files.Load(filename)
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "file not found", nil)
		return
	}
	data, ok := value.([]byte)
	if !ok {
		s.respondError(w, r, http.StatusInternalServerError, "internal type assertion error", nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write csv response", "err", err)
	}
}

// --- helpers ---

// writeJSON encodes v as JSON with the given status and writes headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request error", "status", status, "msg", message, "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		s.logger.Warn("request error", "status", status, "msg", message, "method", r.Method, "path", r.URL.Path)
	}
	_ = s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// withLogging wraps a handler to log requests and recover panics.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
				s.respondError(w, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
		}()
		next(w, r)
	}
}
