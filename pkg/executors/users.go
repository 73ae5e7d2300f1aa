package executors

import (
	"context"
	"errors"
	"fmt"

	"github.com/yurifrl/categorisation/pkg/models"
	"github.com/yurifrl/categorisation/pkg/result"
	"github.com/yurifrl/categorisation/pkg/tink"
)

// TestConnectivity pings the platform and checks its health.
func (e *Executor) TestConnectivity(ctx context.Context) *result.Sequence {
	seq := result.NewSequence("Test connectivity")
	seq.Append(
		result.New("Ping", e.tink.Ping(ctx)),
		result.New("Health check", e.tink.HealthCheck(ctx)),
	)
	return seq
}

// AuthorizeClient obtains a client access token for scope.
func (e *Executor) AuthorizeClient(ctx context.Context, scope string) *result.Sequence {
	if scope == "" {
		scope = tink.ScopeAuthorizationGrant
	}
	seq := result.NewSequence("Authorize client")
	resp := e.tink.AuthorizeClientAccess(ctx, tink.GrantClientCredentials, scope)
	seq.Append(result.New("Authorize client access", resp.Response).MarkImportant())
	return seq
}

// ListCategories reads the category tree of the platform.
func (e *Executor) ListCategories(ctx context.Context, locale string) *result.Sequence {
	seq := result.NewSequence("List categories")
	resp := e.tink.ListCategories(ctx, locale)
	res := result.New("List categories", resp.Response).MarkImportant()
	if resp.OK() {
		res.Message = fmt.Sprintf("%d categories", resp.Count)
	}
	seq.Append(res)
	return seq
}

// ActivateUsers creates every user of the bound user source with one client
// access token. A user that already exists yields a Warning.
func (e *Executor) ActivateUsers(ctx context.Context) (*result.Sequence, error) {
	seq := result.NewSequence("Activate users")
	users, err := e.users(seq)
	if err != nil {
		return seq, fmt.Errorf("failed to read users: %w", err)
	}

	client := e.tink.AuthorizeClientAccess(ctx, tink.GrantClientCredentials, tink.ScopeUserCreate)
	seq.Append(result.New("Authorize client access", client.Response))
	if !client.OK() {
		e.logger.Error("cannot activate users without client access token", "status", client.Status())
		return seq, nil
	}

	created := 0
	for _, u := range users.Items {
		res := e.activate(ctx, client.AccessToken, u)
		if res.Status == result.Success {
			created++
		}
		seq.Append(res)
	}
	seq.Message = fmt.Sprintf("%d of %d user(s) created", created, users.Len())
	return seq, nil
}

func (e *Executor) activate(ctx context.Context, clientToken string, u *models.User) *result.Result {
	resp := e.tink.CreateUser(ctx, clientToken, u)
	res := result.New("Create user "+u.ExternalUserID, resp.Response).MarkImportant()
	switch res.Status {
	case result.Success:
		res.Message = "user_id " + resp.UserID
		e.logger.Info("created user", "external_user_id", u.ExternalUserID, "user_id", resp.UserID)
	case result.Warning:
		e.logger.Warn("user already exists", "external_user_id", u.ExternalUserID)
	default:
		e.logger.Error("failed to create user", "external_user_id", u.ExternalUserID, "status", resp.Status())
	}
	return res
}

// ActivateUser creates a single user.
func (e *Executor) ActivateUser(ctx context.Context, u *models.User) *result.Sequence {
	seq := result.NewSequence("Activate user " + u.ExternalUserID)
	client := e.tink.AuthorizeClientAccess(ctx, tink.GrantClientCredentials, tink.ScopeUserCreate)
	seq.Append(result.New("Authorize client access", client.Response))
	if !client.OK() {
		return seq
	}
	return seq.Append(e.activate(ctx, client.AccessToken, u))
}

// authorizeUser runs the OAuth flow for one user with the default client grant.
func (e *Executor) authorizeUser(ctx context.Context, externalUserID, userScope string) (*result.Sequence, *tink.Authorization, error) {
	return e.tink.AuthorizeUser(ctx, tink.GrantClientCredentials, tink.ScopeAuthorizationGrant, userScope, externalUserID)
}

// skipped notes a call that was not made because the flow produced no user token.
func skipped(action string) *result.Result {
	return result.Note(action, result.Undefined, "skipped: no user access token").MarkImportant()
}

// DeleteUser deletes one user. An unknown user is returned as
// *tink.UserNotFoundError whose sequence ends with an Exception.
func (e *Executor) DeleteUser(ctx context.Context, externalUserID string) (*result.Sequence, error) {
	seq := result.NewSequence("Delete user " + externalUserID)
	flow, auth, err := e.authorizeUser(ctx, externalUserID, tink.ScopeUserDelete)
	seq.Append(flow)
	if err != nil {
		var nf *tink.UserNotFoundError
		if errors.As(err, &nf) {
			nf.Sequence = seq
		}
		return seq, err
	}
	if flow.Last().Status != result.Success {
		return seq.Append(skipped("Delete user")), nil
	}

	resp := e.tink.DeleteUser(ctx, auth.UserToken)
	seq.Append(result.New("Delete user", resp.Response).MarkImportant())
	if resp.OK() {
		e.logger.Info("deleted user", "external_user_id", externalUserID)
	}
	return seq, nil
}

// DeleteUsers deletes every user of the bound user source, one at a time in
// file order. Nothing is deleted unless deletion is allowed by configuration.
// A failure for one user does not stop the others.
func (e *Executor) DeleteUsers(ctx context.Context) (*result.Sequence, error) {
	seq := result.NewSequence("Delete users")
	if !e.config.Tink.AllowDelete {
		msg := "pre-delete skipped: deletion of existing users is disabled"
		e.logger.Info(msg)
		seq.Message = msg
		return seq.Append(result.Note("Delete users", result.Warning, msg).MarkImportant()), nil
	}

	users, err := e.users(seq)
	if err != nil {
		return seq, fmt.Errorf("failed to read users: %w", err)
	}
	deleted, missing := 0, 0
	for _, u := range users.Items {
		sub, err := e.DeleteUser(ctx, u.ExternalUserID)
		seq.Append(sub)
		switch {
		case errors.Is(err, tink.ErrUserNotFound):
			missing++
			e.logger.Warn("nothing to delete", "external_user_id", u.ExternalUserID)
		case err != nil:
			e.logger.Warn("failed to delete user", "external_user_id", u.ExternalUserID, "err", err)
		case sub.Last().Status == result.Success:
			deleted++
		}
	}
	seq.Message = fmt.Sprintf("%d deleted, %d not found, %d user(s) in source", deleted, missing, users.Len())
	return seq, nil
}

// UserExists reports whether the platform knows externalUserID. The error is
// set only when the flow failed for another reason than an unknown user.
func (e *Executor) UserExists(ctx context.Context, externalUserID string) (bool, *result.Sequence, error) {
	seq, _, err := e.authorizeUser(ctx, externalUserID, tink.ScopeUserRead)
	if errors.Is(err, tink.ErrUserNotFound) {
		seq.Message = "user does not exist"
		return false, seq, nil
	}
	if err != nil {
		return false, seq, err
	}
	if last := seq.Last(); last.Status != result.Success {
		return false, seq, fmt.Errorf("could not determine whether %q exists: %s", externalUserID, last.Message)
	}
	seq.Message = "user exists"
	return true, seq, nil
}

// GetUser reads the platform's view of one user.
func (e *Executor) GetUser(ctx context.Context, externalUserID string) (*result.Sequence, error) {
	seq := result.NewSequence("Get user " + externalUserID)
	flow, auth, err := e.authorizeUser(ctx, externalUserID, tink.ScopeUserRead)
	seq.Append(flow)
	if err != nil {
		return seq, err
	}
	if flow.Last().Status != result.Success {
		return seq.Append(skipped("Get user")), nil
	}
	resp := e.tink.GetUser(ctx, auth.UserToken)
	res := result.New("Get user", resp.Response).MarkImportant()
	if resp.OK() {
		res.Message = "user_id " + resp.UserID
	}
	return seq.Append(res), nil
}
