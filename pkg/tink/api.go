// Package tink calls the endpoints of the Tink personal finance platform.
package tink

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/categorisation/pkg/catalog"
	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/envelope"
	"github.com/yurifrl/categorisation/pkg/models"
)

const (
	PathPing               = "/api/v1/monitoring/ping"
	PathHealthy            = "/api/v1/monitoring/healthy"
	PathCategories         = "/api/v1/categories"
	PathToken              = "/api/v1/oauth/token"
	PathAuthorizationGrant = "/api/v1/oauth/authorization-grant"
	PathUserCreate         = "/api/v1/user/create"
	PathUserDelete         = "/api/v1/user/delete"
	PathUser               = "/api/v1/user"
	PathAccountsList       = "/api/v1/accounts/list"
	// Connector paths, relative to the connector root.
	PathIngestAccounts     = "/users/%s/accounts"
	PathIngestTransactions = "/users/%s/transactions"
)

const (
	GrantClientCredentials = "client_credentials"
	GrantAuthorizationCode = "authorization_code"
)

const (
	ScopeAuthorizationGrant = "authorization:grant"
	ScopeUserCreate         = "user:create"
	ScopeUserRead           = "user:read"
	ScopeUserDelete         = "user:delete"
	ScopeAccountsRead       = "accounts:read"
	ScopeAccountsWrite      = "accounts:write"
	ScopeTransactionsWrite  = "transactions:write"
)

// API holds the partner credentials and the roots of the platform.
type API struct {
	client       *envelope.Client
	logger       *log.Logger
	url          string
	connectorURL string
	clientID     string
	clientSecret string
}

func New(cfg *config.Config, client *envelope.Client, logger *log.Logger) *API {
	return &API{
		client:       client,
		logger:       logger,
		url:          cfg.Tink.URL,
		connectorURL: cfg.Tink.ConnectorURL,
		clientID:     cfg.Tink.ClientID,
		clientSecret: cfg.Tink.ClientSecret,
	}
}

// TokenResponse is returned by the OAuth token endpoint.
type TokenResponse struct {
	*envelope.Response
	AccessToken string
	TokenType   string
	ExpiresIn   string
	Scope       string
}

// GrantResponse is returned by the authorization-grant endpoint.
type GrantResponse struct {
	*envelope.Response
	Code string
}

// UserResponse is returned by the user endpoints.
type UserResponse struct {
	*envelope.Response
	UserID string
}

// CategoriesResponse is returned by the categories endpoint.
type CategoriesResponse struct {
	*envelope.Response
	Count int
}

func (a *API) do(ctx context.Context, req *envelope.Request) *envelope.Response {
	return a.client.Do(ctx, req)
}

func (a *API) doJSON(ctx context.Context, req *envelope.Request, body any) *envelope.Response {
	if _, err := req.WithJSON(body); err != nil {
		return envelope.Failed(req, err)
	}
	return a.do(ctx, req)
}

func (a *API) Ping(ctx context.Context) *envelope.Response {
	return a.do(ctx, envelope.NewRequest(http.MethodGet, a.url, PathPing).Expect("text"))
}

func (a *API) HealthCheck(ctx context.Context) *envelope.Response {
	return a.do(ctx, envelope.NewRequest(http.MethodGet, a.url, PathHealthy).Expect("text"))
}

// ListCategories returns the category tree, localised when locale is set.
func (a *API) ListCategories(ctx context.Context, locale string) *CategoriesResponse {
	req := envelope.NewRequest(http.MethodGet, a.url, PathCategories)
	if locale != "" {
		req.WithQuery(url.Values{"locale": {locale}})
	}
	resp := &CategoriesResponse{Response: a.do(ctx, req)}
	if list, ok := resp.Data.([]any); ok {
		resp.Count = len(list)
	}
	return resp
}

func (a *API) token(ctx context.Context, form url.Values) *TokenResponse {
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)
	req := envelope.NewRequest(http.MethodPost, a.url, PathToken).
		WithForm(form).
		Expect(catalog.TokenResponse...)
	resp := &TokenResponse{Response: a.do(ctx, req)}
	resp.AccessToken = resp.String("access_token")
	resp.TokenType = resp.String("token_type")
	resp.ExpiresIn = resp.String("expires_in")
	resp.Scope = resp.String("scope")
	return resp
}

// AuthorizeClientAccess obtains a client access token for the partner account.
func (a *API) AuthorizeClientAccess(ctx context.Context, grantType, scope string) *TokenResponse {
	a.logger.Debug("authorizing client", "grant_type", grantType, "scope", scope)
	return a.token(ctx, url.Values{"grant_type": {grantType}, "scope": {scope}})
}

// GetUserAccessToken exchanges an authorization code for a user access token.
func (a *API) GetUserAccessToken(ctx context.Context, code string) *TokenResponse {
	return a.token(ctx, url.Values{"grant_type": {GrantAuthorizationCode}, "code": {code}})
}

// GrantUserAccess creates an authorization code for the user. A 404 is the
// platform's way of saying the user does not exist and yields ErrUserNotFound.
func (a *API) GrantUserAccess(ctx context.Context, clientToken, externalUserID, scope string) (*GrantResponse, error) {
	req := envelope.NewRequest(http.MethodPost, a.url, PathAuthorizationGrant).
		WithBearer(clientToken).
		WithForm(url.Values{"external_user_id": {externalUserID}, "scope": {scope}}).
		Expect(catalog.AuthorizeResponse...)
	resp := &GrantResponse{Response: a.do(ctx, req)}
	resp.Code = resp.String("code")
	if resp.StatusCode == http.StatusNotFound {
		return resp, ErrUserNotFound
	}
	return resp, nil
}

// CreateUser creates a user with the client access token.
func (a *API) CreateUser(ctx context.Context, clientToken string, u *models.User) *UserResponse {
	req := envelope.NewRequest(http.MethodPost, a.url, PathUserCreate).
		WithBearer(clientToken).
		Expect(catalog.UserResponse...)
	resp := &UserResponse{Response: a.doJSON(ctx, req, u)}
	resp.UserID = resp.String("user_id")
	return resp
}

// DeleteUser deletes the user the access token was issued for.
func (a *API) DeleteUser(ctx context.Context, userToken string) *UserResponse {
	req := envelope.NewRequest(http.MethodPost, a.url, PathUserDelete).
		WithBearer(userToken).
		Expect(catalog.UserResponse...)
	resp := &UserResponse{Response: a.do(ctx, req)}
	resp.UserID = resp.String("user_id")
	return resp
}

// GetUser reads the user the access token was issued for.
func (a *API) GetUser(ctx context.Context, userToken string) *UserResponse {
	req := envelope.NewRequest(http.MethodGet, a.url, PathUser).
		WithBearer(userToken).
		Expect(catalog.GetUserResponse...)
	resp := &UserResponse{Response: a.do(ctx, req)}
	resp.UserID = resp.String("id")
	return resp
}

// IngestAccounts uploads the accounts of one user through the connector.
func (a *API) IngestAccounts(ctx context.Context, clientToken, externalUserID string, accounts []*models.Account) *envelope.Response {
	req := envelope.NewRequest(http.MethodPost, a.connectorURL, fmt.Sprintf(PathIngestAccounts, url.PathEscape(externalUserID))).
		WithBearer(clientToken)
	return a.doJSON(ctx, req, models.NewAccountsRequest(accounts))
}

// IngestTransactions uploads the transactions of one user through the connector.
func (a *API) IngestTransactions(ctx context.Context, clientToken, externalUserID string, trxs []*models.Transaction, accounts []*models.Account) *envelope.Response {
	req := envelope.NewRequest(http.MethodPost, a.connectorURL, fmt.Sprintf(PathIngestTransactions, url.PathEscape(externalUserID))).
		WithBearer(clientToken)
	return a.doJSON(ctx, req, models.NewTransactionsRequest(trxs, accounts))
}
