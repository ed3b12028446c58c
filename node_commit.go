package ticketflow

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
)

// CommitChangesNode applies the generated changeset as one commit on the
// work branch.
//
// Prerequisites: state.Ticket, state.Repo, state.Change, state.Branch
// Updates: state.CommitSH
func CommitChangesNode(ctx flowgraph.Context, state WorkflowState) (WorkflowState, error) {
	if err := state.Validate(RequireTicket, RequireRepo, RequireChange, RequireBranch); err != nil {
		return state, err
	}
	if IsProtectedBranch(state.Branch) {
		return state, fmt.Errorf("%w: refusing to commit to %q", ErrProtectedBranch, state.Branch)
	}

	message := CommitMessage(*state.Ticket, *state.Change)

	if state.DryRun {
		slog.Info("dry-run: would commit",
			"run_id", state.RunID,
			"repo", state.Repo.FullName(),
			"branch", state.Branch,
			"files", len(state.Change.Edits))
		state.CommitSH = "dry-run"
		return state, nil
	}

	host := MustHostFromContext(ctx)
	sha, err := host.CommitChanges(ctx, *state.Repo, state.Branch, message, state.Change.Edits)
	if err != nil {
		return state, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	state.CommitSH = sha

	slog.Info("committed changes",
		"run_id", state.RunID,
		"repo", state.Repo.FullName(),
		"branch", state.Branch,
		"sha", sha,
		"files", len(state.Change.Edits))
	return state, nil
}

// CommitMessage builds a conventional commit message from the ticket and
// change. First line stays under 72 characters.
func CommitMessage(ticket Ticket, change GeneratedChange) string {
	subject := fmt.Sprintf("%s: %s", ticket.Key, ticket.Summary)
	if len(subject) > 72 {
		subject = subject[:69] + "..."
	}

	var b strings.Builder
	b.WriteString(subject)
	b.WriteString("\n\n")
	if change.Summary != "" {
		b.WriteString(change.Summary)
		b.WriteString("\n\n")
	}
	if ticket.URL != "" {
		b.WriteString("Ticket: ")
		b.WriteString(ticket.URL)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
