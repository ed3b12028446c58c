package ticketflow

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
)

// OpenPullRequestNode opens the PR for the committed branch.
//
// A change that needs review becomes a draft PR so it cannot merge without
// a human. An already-open PR for the branch is a conflict, not a failure:
// the desired end state exists.
//
// Prerequisites: state.Ticket, state.Repo, state.Change, state.Branch,
// state.CommitSH
// Updates: state.PRNumber, state.PRURL
func OpenPullRequestNode(ctx flowgraph.Context, state WorkflowState) (WorkflowState, error) {
	if err := state.Validate(RequireTicket, RequireRepo, RequireChange, RequireBranch, RequireCommit); err != nil {
		return state, err
	}
	params := ParamsFromContext(ctx)

	opts := PROptions{
		Repo:   *state.Repo,
		Branch: state.Branch,
		Base:   state.Repo.DefaultBranch,
		Title:  fmt.Sprintf("%s: %s", state.Ticket.Key, state.Ticket.Summary),
		Body:   PRBody(*state.Ticket, *state.Change, *state.Metrics, state.Gate),
		Draft:  state.Gate == GateNeedsReview,
		Labels: params.PRLabels,
	}

	if state.DryRun {
		slog.Info("dry-run: would open pull request",
			"run_id", state.RunID,
			"repo", state.Repo.FullName(),
			"branch", state.Branch,
			"draft", opts.Draft)
		state.PRNumber = -1
		state.PRURL = fmt.Sprintf("dry-run://%s/pulls/%s", state.Repo.FullName(), state.Branch)
		return state, nil
	}

	host := MustHostFromContext(ctx)
	pr, err := host.OpenPullRequest(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrPRExists) {
			slog.Info("pull request already exists",
				"run_id", state.RunID, "repo", state.Repo.FullName(), "branch", state.Branch)
			state.RecordError("open_pull_request", KindConflict, 1, err)
			state.PRNumber = -1
			return state, nil
		}
		return state, err
	}
	state.PRNumber = pr.Number
	state.PRURL = pr.URL

	slog.Info("opened pull request",
		"run_id", state.RunID,
		"repo", state.Repo.FullName(),
		"pr", pr.Number,
		"url", pr.URL,
		"draft", opts.Draft)
	return state, nil
}

// PRBody renders the standard pull request description.
func PRBody(ticket Ticket, change GeneratedChange, metrics QualityMetrics, gate GateDecision) string {
	var b strings.Builder

	b.WriteString("## Summary\n\n")
	if change.Summary != "" {
		b.WriteString(change.Summary)
	} else {
		b.WriteString(ticket.Summary)
	}
	b.WriteString("\n\n## Changes Made\n\n")
	for _, e := range change.Edits {
		b.WriteString(fmt.Sprintf("- `%s` (%s)\n", e.Path, e.Action))
	}
	b.WriteString(fmt.Sprintf("\n%d files, %d lines changed.\n", metrics.FilesChanged, metrics.LinesChanged))

	b.WriteString("\n## Jira Ticket\n\n")
	if ticket.URL != "" {
		b.WriteString(fmt.Sprintf("[%s](%s): %s\n", ticket.Key, ticket.URL, ticket.Summary))
	} else {
		b.WriteString(fmt.Sprintf("%s: %s\n", ticket.Key, ticket.Summary))
	}

	b.WriteString("\n## Test Plan\n\n")
	if change.TestPlan != "" {
		b.WriteString(change.TestPlan)
		b.WriteString("\n")
	} else {
		b.WriteString("- [ ] Verify the change against the ticket's acceptance criteria\n")
	}

	if gate == GateNeedsReview && len(metrics.ReviewReasons) > 0 {
		b.WriteString("\n## Review Required\n\n")
		for _, r := range metrics.ReviewReasons {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
	}
	return b.String()
}
