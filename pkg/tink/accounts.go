package tink

import (
	"context"
	"net/http"
	"sort"

	"github.com/yurifrl/categorisation/pkg/catalog"
	"github.com/yurifrl/categorisation/pkg/envelope"
	"github.com/yurifrl/categorisation/pkg/records"
)

// AccountsResponse is returned by the account list endpoint.
type AccountsResponse struct {
	*envelope.Response
	Accounts []map[string]any
}

// ListAccounts lists the accounts of the user the access token was issued for.
func (a *API) ListAccounts(ctx context.Context, userToken string) *AccountsResponse {
	req := envelope.NewRequest(http.MethodGet, a.url, PathAccountsList).
		WithBearer(userToken).
		Expect(catalog.AccountsResponse...)
	resp := &AccountsResponse{Response: a.do(ctx, req)}
	if list, ok := resp.Object()["accounts"].([]any); ok {
		for _, item := range list {
			if acc, ok := item.(map[string]any); ok {
				resp.Accounts = append(resp.Accounts, acc)
			}
		}
	}
	return resp
}

// Records flattens the listed accounts into records. The field list is the
// sorted union of the keys seen, with nested values kept as JSON.
func (r *AccountsResponse) Records() ([]records.Record, []string) {
	seen := make(map[string]bool)
	var fields []string
	out := make([]records.Record, 0, len(r.Accounts))
	for _, acc := range r.Accounts {
		for k := range acc {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
		out = append(out, records.FromObject(acc, nil))
	}
	sort.Strings(fields)
	return out, fields
}
