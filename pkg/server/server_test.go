package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/categorisation/pkg/castlight"
	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/envelope"
	"github.com/yurifrl/categorisation/pkg/executors"
	"github.com/yurifrl/categorisation/pkg/records"
	"github.com/yurifrl/categorisation/pkg/result"
	"github.com/yurifrl/categorisation/pkg/tink"
)

// vendors serves the platform and the categorisation engine from one root.
func vendors(known map[string]bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(tink.PathToken, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "token", "expires_in": 1800})
	})
	mux.HandleFunc(tink.PathAuthorizationGrant, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if !known[r.PostForm.Get("external_user_id")] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"code": "code"})
	})
	mux.HandleFunc(tink.PathUserCreate, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"user_id": "id"})
	})
	mux.HandleFunc(castlight.PathClassify, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"classifications": []map[string]any{
			{"category": "Food & Drink", "subcategory": "Coffee", "probability": 0.9},
		}})
	})
	return mux
}

func newTestServer(t *testing.T, known map[string]bool) *Server {
	t.Helper()
	srv := httptest.NewServer(vendors(known))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Tink.URL = srv.URL
	cfg.Castlight.URL = srv.URL
	logger := log.New(io.Discard)
	client := envelope.NewWithHTTPClient(srv.Client(), logger)
	categoriser := castlight.New(cfg, client, logger)
	exec := executors.New(logger, cfg, tink.New(cfg, client, logger), categoriser, records.StaticSource{})
	return New(cfg, logger, exec, categoriser)
}

type sequenceBody struct {
	Status   string      `json:"status"`
	Sequence result.View `json:"sequence"`
	Exists   bool        `json:"exists"`
	File     string      `json:"file"`
	Rows     int         `json:"rows"`
	Error    string      `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) sequenceBody {
	t.Helper()
	var body sequenceBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUserExists(t *testing.T) {
	s := newTestServer(t, map[string]bool{"u1": true})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/exists?user=u1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.True(t, body.Exists)
	assert.Equal(t, "success", body.Status)
	assert.Len(t, body.Sequence.Results, 3)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/exists?user=ghost&exceptions=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.False(t, body.Exists)
	assert.Equal(t, "warning", body.Status)
	require.Len(t, body.Sequence.Results, 1)
	assert.Equal(t, "EXCEPTION", body.Sequence.Results[0].Status)
	assert.Equal(t, http.StatusNotFound, body.Sequence.Results[0].HTTPStatus)
}

func TestUserExistsRequiresUser(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/exists", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "user required", decode(t, rec).Error)
}

func TestCategoriseUploadAndDownload(t *testing.T) {
	s := newTestServer(t, nil)

	body, contentType := multipartBody(t, "transactions", "march.csv", "type;description;amount\nDEBIT;Coffee;3.50\n")
	req := httptest.NewRequest(http.MethodPost, "/api/categorise", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, "march-categorised.csv", got.File)
	assert.Equal(t, 1, got.Rows)
	assert.Equal(t, "SUCCESS", got.Sequence.Status)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/march-categorised.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		"type;description;amount;categorisation_method;category;low_confidence;probability;subcategory\n"+
			"DEBIT;Coffee;3.50;;Food & Drink;;0.9;Coffee\n",
		rec.Body.String())
}

func TestCategoriseFailureReportsError(t *testing.T) {
	s := newTestServer(t, nil)

	// Two rows against an engine that classifies one.
	body, contentType := multipartBody(t, "transactions", "march.csv", "type;description;amount\nDEBIT;Coffee;3.50\nDEBIT;Tea;2.00\n")
	req := httptest.NewRequest(http.MethodPost, "/api/categorise", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "error", got.Status)
	assert.Contains(t, got.Error, "do not equal")
	assert.Empty(t, got.File)
	assert.Equal(t, "ERROR", got.Sequence.Results[0].Status)
}

func TestActivateUsersUpload(t *testing.T) {
	s := newTestServer(t, nil)

	body, contentType := multipartBody(t, "users", "users.csv", "external_user_id;label;market;locale\nu1;;SE;sv_SE\n")
	req := httptest.NewRequest(http.MethodPost, "/api/users/activate?important=true", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "1 of 1 user(s) created", got.Sequence.Message)
	require.Len(t, got.Sequence.Results, 1)
	assert.Equal(t, tink.PathUserCreate, got.Sequence.Results[0].Endpoint)
}

func TestDeleteUsersDisabledByDefault(t *testing.T) {
	s := newTestServer(t, nil)

	body, contentType := multipartBody(t, "users", "users.csv", "external_user_id;label;market;locale\nu1;;SE;sv_SE\n")
	req := httptest.NewRequest(http.MethodPost, "/api/users/delete", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "warning", got.Status)
	assert.Equal(t, "WARNING", got.Sequence.Status)
}

func TestErrors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		method, path string
		code         int
	}{
		{http.MethodPost, "/api/ping", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/categorise", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/categorise", http.StatusBadRequest},
		{http.MethodGet, "/api/files/unknown.csv", http.StatusNotFound},
		{http.MethodGet, "/api/files/", http.StatusBadRequest},
		{http.MethodGet, "/api/accounts", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.code, rec.Code, "%s %s", tt.method, tt.path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}
