package envelope

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/categorisation/pkg/config"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(config.Default(), log.New(io.Discard))
	require.NoError(t, err)
	return c
}

func TestDoParsesJSONAndProjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_id":"abc123","extra":"ignored"}`))
	}))
	defer srv.Close()

	req := NewRequest(http.MethodPost, srv.URL+"/", "/api/v1/user/create").
		WithBearer("secret-token").
		Expect("user_id")
	resp := testClient(t).Do(context.Background(), req)

	require.True(t, resp.OK())
	assert.Equal(t, srv.URL+"/api/v1/user/create", req.URL)
	assert.Equal(t, "abc123", resp.String("user_id"))
	_, ok := resp.Field("extra")
	assert.False(t, ok)
	assert.Equal(t, "200 OK", resp.Status())
	assert.Equal(t, "POST /api/v1/user/create -> 200 OK user_id=abc123", resp.Summary(config.Low))
}

func TestDoFallsBackToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	resp := testClient(t).Do(context.Background(), NewRequest(http.MethodGet, srv.URL, "/api/v1/monitoring/ping").Expect("text"))

	assert.Equal(t, map[string]any{"text": "pong"}, resp.Data)
	assert.Equal(t, "pong", resp.String("text"))
	assert.Equal(t, "pong", resp.Text)
	assert.Equal(t, []byte("pong"), resp.Bytes)
}

func TestDoTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	resp := testClient(t).Do(context.Background(), NewRequest(http.MethodGet, srv.URL, "/api/v1/monitoring/ping"))

	assert.Equal(t, NotExecuted, resp.StatusCode)
	assert.Error(t, resp.Err)
	assert.False(t, resp.Executed())
	assert.False(t, resp.IsSuccessRange(200))
	assert.Equal(t, "not executed", resp.Status())
	assert.NotNil(t, resp.Object())
}

func TestIsSuccessRange(t *testing.T) {
	for code, band := range map[int]int{200: 200, 204: 200, 404: 400, 409: 400, 503: 500} {
		resp := &Response{StatusCode: code}
		assert.True(t, resp.IsSuccessRange(band), code)
		assert.False(t, resp.IsSuccessRange(band+100), code)
	}
}

func TestMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorMessage":"market is invalid","errorCode":"BAD"}`))
	}))
	defer srv.Close()

	resp := testClient(t).Do(context.Background(), NewRequest(http.MethodPost, srv.URL, "/api/v1/user/create"))

	assert.True(t, resp.IsSuccessRange(400))
	assert.Equal(t, "market is invalid", resp.Message())
	assert.Contains(t, resp.Summary(config.Low), "(market is invalid)")
}

func TestSummaryLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accounts":[{"id":"1"},{"id":"2"}]}`))
	}))
	defer srv.Close()

	req := NewRequest(http.MethodGet, srv.URL, "/api/v1/accounts/list").WithBearer("user-token-9876").Expect("accounts")
	resp := testClient(t).Do(context.Background(), req)

	low := resp.Summary(config.Low)
	assert.Contains(t, low, "accounts=2 item(s)")
	assert.NotContains(t, low, "\n")

	medium := resp.Summary(config.Medium)
	assert.Contains(t, medium, `{"accounts":[{"id":"1"},{"id":"2"}]}`)

	high := resp.Summary(config.High)
	assert.Contains(t, high, "--- request")
	assert.Contains(t, high, "Authorization: ****9876")
	assert.NotContains(t, high, "user-token-9876")
	assert.Contains(t, high, "--- response")
}

func TestRequestStringMasksFormSecrets(t *testing.T) {
	req := NewRequest(http.MethodPost, "https://api.example.com", "/api/v1/oauth/token").
		WithForm(url.Values{"client_id": {"id-1"}, "client_secret": {"very-secret-value"}, "grant_type": {"client_credentials"}})

	s := req.String()
	assert.Contains(t, s, "client_id=id-1")
	assert.Contains(t, s, "grant_type=client_credentials")
	assert.NotContains(t, s, "very-secret-value")
	assert.Contains(t, s, "alue")
}

func TestWithQuery(t *testing.T) {
	req := NewRequest(http.MethodGet, "https://api.example.com/", "/api/v1/categories").
		WithQuery(url.Values{"locale": {"en_US"}})
	assert.Equal(t, "https://api.example.com/api/v1/categories?locale=en_US", req.URL)
	assert.Equal(t, "/api/v1/categories", req.Endpoint)
}

func TestProxyConfiguration(t *testing.T) {
	cfg := config.Default()
	cfg.Proxy = config.ProxyConfig{Enabled: true, Host: "proxy.local", Port: "3128"}

	c, err := New(cfg, log.New(io.Discard))
	require.NoError(t, err)

	transport, ok := c.http.Transport.(*http.Transport)
	require.True(t, ok)
	u, err := transport.Proxy(httptest.NewRequest(http.MethodGet, "https://api.tink.se/", nil))
	require.NoError(t, err)
	assert.Equal(t, "proxy.local:3128", u.Host)
}
