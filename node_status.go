package ticketflow

import (
	"fmt"
	"log/slog"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
)

// UpdateTicketStatusNode closes the loop with the tracker: transition the
// ticket, post the PR link, and settle the run's outcome.
//
// Tracker failures here are logged but never fail the run. The PR exists;
// losing a status transition is recoverable by a human, losing the PR is
// not worth risking on a retry loop.
//
// Prerequisites: state.Ticket, state.Branch
// Updates: state.Outcome
func UpdateTicketStatusNode(ctx flowgraph.Context, state WorkflowState) (WorkflowState, error) {
	if err := state.Validate(RequireTicket, RequireBranch); err != nil {
		return state, err
	}
	params := ParamsFromContext(ctx)

	outcome := OutcomeCompleted
	status := params.DoneStatus
	if state.Gate == GateNeedsReview {
		outcome = OutcomeReviewPending
		status = params.ReviewStatus
	}

	if state.DryRun {
		slog.Info("dry-run: would update ticket",
			"run_id", state.RunID, "ticket", state.Ticket.Key, "status", status)
		return state.WithOutcome(outcome), nil
	}

	tracker := MustTrackerFromContext(ctx)
	if err := tracker.TransitionTicket(ctx, state.Ticket.Key, status); err != nil {
		slog.Warn("failed to transition ticket",
			"ticket", state.Ticket.Key, "status", status, "error", err)
		state.RecordError("update_ticket_status", KindTransient, 1, err)
	}

	comment := statusComment(state)
	if err := tracker.AddComment(ctx, state.Ticket.Key, comment); err != nil {
		slog.Warn("failed to comment on ticket", "ticket", state.Ticket.Key, "error", err)
	}

	slog.Info("ticket updated",
		"run_id", state.RunID, "ticket", state.Ticket.Key, "status", status, "outcome", outcome)
	return state.WithOutcome(outcome), nil
}

func statusComment(state WorkflowState) string {
	if state.PRURL != "" {
		if state.Gate == GateNeedsReview {
			return fmt.Sprintf("Draft pull request opened for review: %s", state.PRURL)
		}
		return fmt.Sprintf("Pull request opened: %s", state.PRURL)
	}
	return fmt.Sprintf("Changes pushed to branch %s", state.Branch)
}
