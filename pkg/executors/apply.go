package executors

import (
	"context"
	"errors"
	"fmt"

	"github.com/yurifrl/categorisation/pkg/castlight"
	"github.com/yurifrl/categorisation/pkg/plan"
	"github.com/yurifrl/categorisation/pkg/result"
	"github.com/yurifrl/categorisation/pkg/tink"
)

// Apply runs the steps of p in order against its sources. An unknown user or
// a dry run does not stop the plan; any other error does.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan) (*result.Sequence, error) {
	e.logger.Debug("applying plan", "steps", len(p.Steps))
	ex := e.WithSource(p.Source(e.config.Delimiter()))

	seq := result.NewSequence("Apply plan")
	for i, st := range p.Steps {
		sub, err := ex.Run(ctx, st)
		seq.Append(sub)
		if errors.Is(err, tink.ErrUserNotFound) {
			e.logger.Warn("user does not exist", "step", i+1, "user", st.User)
			continue
		}
		if errors.Is(err, castlight.ErrDryRun) {
			e.logger.Warn("dry run, step not executed", "step", i+1, "action", st.Action)
			continue
		}
		if err != nil {
			return seq, fmt.Errorf("step %d (%s): %w", i+1, st.Action, err)
		}
		e.logger.Info("step applied", "step", i+1, "action", st.Action, "status", sub.Status())
	}
	return seq, nil
}

// Run executes a single step.
func (e *Executor) Run(ctx context.Context, st plan.Step) (*result.Sequence, error) {
	switch st.Action {
	case plan.ActionTestConnectivity:
		return e.TestConnectivity(ctx), nil
	case plan.ActionAuthorizeClient:
		return e.AuthorizeClient(ctx, st.Scope), nil
	case plan.ActionListCategories:
		return e.ListCategories(ctx, st.Locale), nil
	case plan.ActionActivateUsers:
		return e.ActivateUsers(ctx)
	case plan.ActionDeleteUsers:
		return e.DeleteUsers(ctx)
	case plan.ActionDeleteUser:
		return e.DeleteUser(ctx, st.User)
	case plan.ActionUserExists:
		_, seq, err := e.UserExists(ctx, st.User)
		return seq, err
	case plan.ActionGetUser:
		return e.GetUser(ctx, st.User)
	case plan.ActionIngestAccounts:
		return e.IngestAccounts(ctx)
	case plan.ActionListAccounts:
		seq, _, err := e.ListAccounts(ctx, st.User)
		return seq, err
	case plan.ActionIngestTransactions:
		return e.IngestTransactions(ctx)
	case plan.ActionProcess:
		return e.Process(ctx)
	case plan.ActionCategorise:
		return e.Categorise(ctx, st.Input, st.Output)
	}
	return result.NewSequence(st.Action), fmt.Errorf("unknown action %q", st.Action)
}
