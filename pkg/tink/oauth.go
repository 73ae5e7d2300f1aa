package tink

import (
	"context"
	"errors"
	"fmt"

	"github.com/yurifrl/categorisation/pkg/result"
)

// ErrUserNotFound is returned when the platform does not know an external user id.
var ErrUserNotFound = errors.New("user does not exist")

// UserNotFoundError carries the calls made before the platform reported the
// user as unknown.
type UserNotFoundError struct {
	ExternalUserID string
	Sequence       *result.Sequence
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("external user %q does not exist", e.ExternalUserID)
}

func (e *UserNotFoundError) Is(target error) bool {
	return target == ErrUserNotFound
}

// Authorization holds the credentials obtained by AuthorizeUser. They are
// short lived and used for one operation only.
type Authorization struct {
	ClientToken string
	Code        string
	UserToken   string
	Scope       string
}

// AuthorizeUser obtains a user access token in three strictly ordered calls:
// authorize the client, grant access to the user, exchange the code. All
// three are attempted even if an earlier one failed; callers inspect
// Last().Status. The only early exit is an unknown user at the grant step,
// returned as *UserNotFoundError with the partial sequence.
func (a *API) AuthorizeUser(ctx context.Context, grantType, clientScope, userScope, externalUserID string) (*result.Sequence, *Authorization, error) {
	seq := result.NewSequence("Authorize user " + externalUserID)
	auth := &Authorization{Scope: userScope}

	client := a.AuthorizeClientAccess(ctx, grantType, clientScope)
	seq.Append(result.New("Authorize client access", client.Response))
	auth.ClientToken = client.AccessToken
	if !client.OK() {
		a.logger.Error("client authorization failed", "status", client.Status(), "scope", clientScope)
	}

	grant, err := a.GrantUserAccess(ctx, auth.ClientToken, externalUserID, userScope)
	if errors.Is(err, ErrUserNotFound) {
		seq.Append(result.New("Grant user access", grant.Response).
			Correct(result.Exception, "user does not exist").
			MarkImportant())
		seq.Message = "user does not exist"
		a.logger.Info("user does not exist", "external_user_id", externalUserID)
		return seq, auth, &UserNotFoundError{ExternalUserID: externalUserID, Sequence: seq}
	}
	seq.Append(result.New("Grant user access", grant.Response))
	auth.Code = grant.Code
	if !grant.OK() {
		a.logger.Error("grant user access failed", "status", grant.Status(), "external_user_id", externalUserID)
	}

	token := a.GetUserAccessToken(ctx, auth.Code)
	seq.Append(result.New("Get user access token", token.Response))
	auth.UserToken = token.AccessToken
	if !token.OK() {
		a.logger.Error("user token exchange failed", "status", token.Status(), "external_user_id", externalUserID)
	}

	return seq, auth, nil
}
