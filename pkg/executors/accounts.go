package executors

import (
	"context"
	"errors"
	"fmt"

	"github.com/yurifrl/categorisation/pkg/models"
	"github.com/yurifrl/categorisation/pkg/result"
	"github.com/yurifrl/categorisation/pkg/tink"
)

// IngestAccounts uploads the accounts of the bound source, one request per
// owning user.
func (e *Executor) IngestAccounts(ctx context.Context) (*result.Sequence, error) {
	seq := result.NewSequence("Ingest accounts")
	accounts, err := e.accounts(seq)
	if err != nil {
		return seq, fmt.Errorf("failed to read accounts: %w", err)
	}

	client := e.tink.AuthorizeClientAccess(ctx, tink.GrantClientCredentials, tink.ScopeAccountsWrite)
	seq.Append(result.New("Authorize client access", client.Response))
	if !client.OK() {
		e.logger.Error("cannot ingest accounts without client access token", "status", client.Status())
		return seq, nil
	}

	for _, owner := range accounts.Owners() {
		subset := accounts.Subset(owner)
		resp := e.tink.IngestAccounts(ctx, client.AccessToken, owner, subset.Items)
		res := result.New(fmt.Sprintf("Ingest %d account(s) of %s", subset.Len(), owner), resp).MarkImportant()
		if !resp.OK() {
			e.logger.Warn("account ingestion failed", "external_user_id", owner, "status", resp.Status())
		}
		seq.Append(res)
	}
	return seq, nil
}

// ListAccounts lists the accounts the platform holds for one user.
func (e *Executor) ListAccounts(ctx context.Context, externalUserID string) (*result.Sequence, *tink.AccountsResponse, error) {
	seq := result.NewSequence("List accounts of " + externalUserID)
	flow, auth, err := e.authorizeUser(ctx, externalUserID, tink.ScopeAccountsRead)
	seq.Append(flow)
	if err != nil {
		return seq, nil, err
	}
	if flow.Last().Status != result.Success {
		return seq.Append(skipped("List accounts")), nil, nil
	}

	resp := e.tink.ListAccounts(ctx, auth.UserToken)
	res := result.New("List accounts", resp.Response).MarkImportant()
	if resp.OK() {
		res.Message = fmt.Sprintf("%d account(s)", len(resp.Accounts))
	}
	seq.Append(res)
	return seq, resp, nil
}

// IngestTransactions uploads the transactions of the bound source, grouped by
// user and account. Account balances are taken from the account source when
// one is bound.
func (e *Executor) IngestTransactions(ctx context.Context) (*result.Sequence, error) {
	seq := result.NewSequence("Ingest transactions")
	trxs, err := e.transactions(seq)
	if err != nil {
		return seq, fmt.Errorf("failed to read transactions: %w", err)
	}
	accounts, err := e.accounts(result.NewSequence(""))
	if err != nil {
		e.logger.Debug("no account balances available", "err", err)
		accounts = models.Collection[*models.Account]{}
	}

	client := e.tink.AuthorizeClientAccess(ctx, tink.GrantClientCredentials, tink.ScopeTransactionsWrite)
	seq.Append(result.New("Authorize client access", client.Response))
	if !client.OK() {
		e.logger.Error("cannot ingest transactions without client access token", "status", client.Status())
		return seq, nil
	}

	for _, owner := range trxs.Owners() {
		subset := trxs.Subset(owner)
		resp := e.tink.IngestTransactions(ctx, client.AccessToken, owner, subset.Items, accounts.Subset(owner).Items)
		res := result.New(fmt.Sprintf("Ingest %d transaction(s) of %s", subset.Len(), owner), resp).MarkImportant()
		if !resp.OK() {
			e.logger.Warn("transaction ingestion failed", "external_user_id", owner, "status", resp.Status())
		}
		seq.Append(res)
	}
	return seq, nil
}

// Process runs the whole pipeline: optional pre-delete, create users, ingest
// accounts, ingest transactions. A failing stage does not stop later ones.
func (e *Executor) Process(ctx context.Context) (*result.Sequence, error) {
	seq := result.NewSequence("Process")
	stages := []func(context.Context) (*result.Sequence, error){
		e.ActivateUsers,
		e.IngestAccounts,
		e.IngestTransactions,
	}
	if e.config.Tink.AllowDelete {
		stages = append([]func(context.Context) (*result.Sequence, error){e.DeleteUsers}, stages...)
	}

	var errs []error
	for _, stage := range stages {
		sub, err := stage(ctx)
		seq.Append(sub)
		if err != nil {
			e.logger.Error("stage failed", "action", sub.Action, "err", err)
			errs = append(errs, err)
		}
	}
	return seq, errors.Join(errs...)
}

// Categorise runs the categorisation engine over one input file.
func (e *Executor) Categorise(ctx context.Context, input, output string) (*result.Sequence, error) {
	seq, err := e.castlight.Process(ctx, input, output)
	if seq == nil {
		seq = result.NewSequence("Categorise " + input)
		seq.Append(result.Note("Read transactions", result.Error, err.Error()).MarkImportant())
	}
	return seq, err
}
