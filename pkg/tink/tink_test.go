package tink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/envelope"
	"github.com/yurifrl/categorisation/pkg/models"
	"github.com/yurifrl/categorisation/pkg/result"
)

// fakeTink mimics the OAuth and user endpoints. Users listed in known exist.
type fakeTink struct {
	mu         sync.Mutex
	calls      []string
	known      map[string]bool
	tokenFails bool
	grantFails bool
}

func (f *fakeTink) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.URL.Path)
	f.mu.Unlock()
	_ = r.ParseForm()

	switch r.URL.Path {
	case PathToken:
		if f.tokenFails {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errorMessage":"invalid client"}`))
			return
		}
		token := "client-token"
		if r.PostForm.Get("grant_type") == GrantAuthorizationCode {
			token = "user-token-for-" + r.PostForm.Get("code")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": token, "token_type": "bearer", "expires_in": 1800, "scope": r.PostForm.Get("scope"),
		})
	case PathAuthorizationGrant:
		if f.grantFails {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		user := r.PostForm.Get("external_user_id")
		if !f.known[user] {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errorMessage":"user not found"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"code": "code-" + user})
	case PathUserCreate:
		var u models.User
		json.NewDecoder(r.Body).Decode(&u)
		if f.known[u.ExternalUserID] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"user_id": "id-" + u.ExternalUserID})
	case PathUserDelete:
		w.WriteHeader(http.StatusNoContent)
	case PathUser:
		json.NewEncoder(w).Encode(map[string]any{"id": "internal-1", "created": 1700000000000})
	case PathAccountsList:
		w.Write([]byte(`{"accounts":[{"id":"a1","name":"Checking","balance":10.5},{"id":"a2","name":"Savings","balance":0}]}`))
	case PathCategories:
		w.Write([]byte(`[{"code":"expenses:food"},{"code":"income:salary"},{"code":"transfers"}]`))
	case PathPing:
		w.Write([]byte("pong"))
	default:
		if strings.HasPrefix(r.URL.Path, "/connector/users/") {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestAPI(t *testing.T, fake *fakeTink) *API {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Tink.URL = srv.URL
	cfg.Tink.ConnectorURL = srv.URL + "/connector"
	cfg.Tink.ClientID = "client-id"
	cfg.Tink.ClientSecret = "client-secret"
	logger := log.New(io.Discard)
	return New(cfg, envelope.NewWithHTTPClient(srv.Client(), logger), logger)
}

func TestAuthorizeUser(t *testing.T) {
	fake := &fakeTink{known: map[string]bool{"u1": true}}
	api := newTestAPI(t, fake)

	seq, auth, err := api.AuthorizeUser(context.Background(), GrantClientCredentials, ScopeAuthorizationGrant, ScopeUserRead, "u1")
	require.NoError(t, err)

	assert.Equal(t, []string{PathToken, PathAuthorizationGrant, PathToken}, fake.called())
	assert.Equal(t, 3, seq.Len())
	assert.Equal(t, result.Success, seq.Status())
	assert.Equal(t, "client-token", auth.ClientToken)
	assert.Equal(t, "code-u1", auth.Code)
	assert.Equal(t, "user-token-for-code-u1", auth.UserToken)
}

func TestAuthorizeUserUnknownUserStopsBeforeExchange(t *testing.T) {
	fake := &fakeTink{known: map[string]bool{}}
	api := newTestAPI(t, fake)

	seq, auth, err := api.AuthorizeUser(context.Background(), GrantClientCredentials, ScopeAuthorizationGrant, ScopeUserDelete, "ghost")

	require.ErrorIs(t, err, ErrUserNotFound)
	var nf *UserNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "ghost", nf.ExternalUserID)
	assert.Same(t, seq, nf.Sequence)

	assert.Equal(t, []string{PathToken, PathAuthorizationGrant}, fake.called())
	require.Equal(t, 2, seq.Len())
	assert.Equal(t, result.Exception, seq.Last().Status)
	assert.True(t, seq.Last().Important)
	assert.Empty(t, auth.UserToken)
}

func TestAuthorizeUserDoesNotShortCircuit(t *testing.T) {
	fake := &fakeTink{known: map[string]bool{"u1": true}, grantFails: true}
	api := newTestAPI(t, fake)

	seq, auth, err := api.AuthorizeUser(context.Background(), GrantClientCredentials, ScopeAuthorizationGrant, ScopeUserRead, "u1")
	require.NoError(t, err)

	assert.Equal(t, []string{PathToken, PathAuthorizationGrant, PathToken}, fake.called())
	require.Equal(t, 3, seq.Len())
	assert.Equal(t, result.Error, seq.Results()[1].Status)
	assert.Equal(t, result.Warning, seq.Status())
	assert.Empty(t, auth.Code)
}

func TestAuthorizeUserClientFailure(t *testing.T) {
	fake := &fakeTink{known: map[string]bool{"u1": true}, tokenFails: true}
	api := newTestAPI(t, fake)

	seq, _, err := api.AuthorizeUser(context.Background(), GrantClientCredentials, ScopeAuthorizationGrant, ScopeUserRead, "u1")
	require.NoError(t, err)
	assert.Len(t, fake.called(), 3)
	assert.Equal(t, result.Error, seq.Results()[0].Status)
	assert.Contains(t, seq.Results()[0].Message, "invalid client")
	assert.Equal(t, result.Error, seq.Last().Status)
}

func TestCreateUser(t *testing.T) {
	fake := &fakeTink{known: map[string]bool{"taken": true}}
	api := newTestAPI(t, fake)
	ctx := context.Background()

	resp := api.CreateUser(ctx, "client-token", &models.User{ExternalUserID: "u2", Market: "SE", Locale: "sv_SE"})
	require.True(t, resp.OK())
	assert.Equal(t, "id-u2", resp.UserID)

	resp = api.CreateUser(ctx, "client-token", &models.User{ExternalUserID: "taken", Market: "SE", Locale: "sv_SE"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, result.Warning, result.New("create", resp.Response).Status)
}

func TestTokenRequestIsFormEncoded(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`{"access_token":"t","token_type":"bearer","expires_in":1800,"scope":"user:create"}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Tink.URL = srv.URL
	cfg.Tink.ClientID = "cid"
	cfg.Tink.ClientSecret = "csecret"
	logger := log.New(io.Discard)
	api := New(cfg, envelope.NewWithHTTPClient(srv.Client(), logger), logger)

	resp := api.AuthorizeClientAccess(context.Background(), GrantClientCredentials, ScopeUserCreate)
	require.True(t, resp.OK())
	assert.Equal(t, "1800", resp.ExpiresIn)
	assert.Equal(t, "user:create", resp.Scope)
	assert.Equal(t, []string{"cid"}, form["client_id"])
	assert.Equal(t, []string{"csecret"}, form["client_secret"])
	assert.Equal(t, []string{"client_credentials"}, form["grant_type"])
}

func TestUserAndAccountReads(t *testing.T) {
	api := newTestAPI(t, &fakeTink{})
	ctx := context.Background()

	user := api.GetUser(ctx, "user-token")
	assert.Equal(t, "internal-1", user.UserID)

	accounts := api.ListAccounts(ctx, "user-token")
	require.Len(t, accounts.Accounts, 2)
	recs, fields := accounts.Records()
	assert.Equal(t, []string{"balance", "id", "name"}, fields)
	assert.Equal(t, "10.5", recs[0]["balance"])
	assert.Equal(t, "accounts=2 item(s)", accounts.Highlights())

	cats := api.ListCategories(ctx, "en_US")
	assert.Equal(t, 3, cats.Count)

	assert.True(t, api.DeleteUser(ctx, "user-token").OK())
	assert.True(t, api.Ping(ctx).OK())
}

func TestIngest(t *testing.T) {
	var bodies []map[string]any
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Tink.ConnectorURL = srv.URL + "/connector"
	logger := log.New(io.Discard)
	api := New(cfg, envelope.NewWithHTTPClient(srv.Client(), logger), logger)
	ctx := context.Background()

	acc := &models.Account{Owner: "u1", ExternalID: "a1", Name: "Checking", Type: "CHECKING", Number: "1", Flags: []string{}}
	trx := &models.Transaction{Owner: "u1", AccountExternalID: "a1", Date: 1, Description: "Coffee", ExternalID: "t1", Type: "DEFAULT"}

	assert.True(t, api.IngestAccounts(ctx, "client-token", "u1", []*models.Account{acc}).OK())
	assert.True(t, api.IngestTransactions(ctx, "client-token", "u1", []*models.Transaction{trx}, []*models.Account{acc}).OK())

	assert.Equal(t, []string{"/connector/users/u1/accounts", "/connector/users/u1/transactions"}, paths)
	require.Len(t, bodies, 2)
	assert.Len(t, bodies[0]["accounts"], 1)
	assert.Equal(t, "BATCH", bodies[1]["type"])
}
