package ticketflow

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
)

// CreateBranchNode creates the work branch and claims the ticket.
//
// An existing branch is not an error: a previous interrupted run left it
// behind, and reusing it converges on the same end state. The ticket is
// assigned and moved to in-progress best-effort; tracker hiccups here must
// not lose an otherwise good change.
//
// Prerequisites: state.Ticket, state.Repo, state.Change
// Updates: state.Branch
func CreateBranchNode(ctx flowgraph.Context, state WorkflowState) (WorkflowState, error) {
	if err := state.Validate(RequireTicket, RequireRepo, RequireChange); err != nil {
		return state, err
	}
	params := ParamsFromContext(ctx)
	branch := BranchName(params.BranchPrefix, state.Ticket.Key)

	if state.DryRun {
		slog.Info("dry-run: would create branch",
			"run_id", state.RunID, "repo", state.Repo.FullName(), "branch", branch)
		return state.WithBranch(branch), nil
	}

	host := MustHostFromContext(ctx)
	exists, err := host.BranchExists(ctx, *state.Repo, branch)
	if err != nil {
		return state, err
	}
	if exists {
		slog.Info("branch already exists, reusing",
			"run_id", state.RunID, "repo", state.Repo.FullName(), "branch", branch)
		state.RecordError("create_branch", KindConflict, 1,
			fmt.Errorf("%w: %s", ErrBranchExists, branch))
	} else if err := host.CreateBranch(ctx, *state.Repo, branch); err != nil {
		// Lost the race against another writer; same end state.
		if errors.Is(err, ErrBranchExists) {
			slog.Info("branch already exists, reusing",
				"run_id", state.RunID, "repo", state.Repo.FullName(), "branch", branch)
			state.RecordError("create_branch", KindConflict, 1, err)
		} else {
			return state, err
		}
	}

	tracker := MustTrackerFromContext(ctx)
	if params.BotAccountID != "" {
		if err := tracker.AssignTicket(ctx, state.Ticket.Key, params.BotAccountID); err != nil {
			slog.Warn("failed to assign ticket", "ticket", state.Ticket.Key, "error", err)
		}
	}
	if err := tracker.TransitionTicket(ctx, state.Ticket.Key, params.InProgressStatus); err != nil {
		slog.Warn("failed to transition ticket",
			"ticket", state.Ticket.Key, "status", params.InProgressStatus, "error", err)
	}

	slog.Info("created branch",
		"run_id", state.RunID, "repo", state.Repo.FullName(), "branch", branch)
	return state.WithBranch(branch), nil
}
