package integrationtest

import (
	"context"
	"testing"
	"time"

	llm "github.com/randalmurphal/llmkit/claude"
	"github.com/randalmurphal/ticketflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolTicket() ticketflow.Ticket {
	return ticketflow.Ticket{
		ID:      "10007",
		Key:     "PROJ-7",
		Summary: "Fix pagination in search endpoint",
		Status:  "To Do",
		URL:     "https://example.atlassian.net/browse/PROJ-7",
	}
}

func runnerConfig() ticketflow.RunnerConfig {
	cfg := ticketflow.DefaultRunnerConfig()
	cfg.Params = testParams()
	cfg.Retry = ticketflow.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
	cfg.MaxTickets = 1
	return cfg
}

// TestTicketToPullRequestWorkflow runs the full pipeline for one ticket:
// fetch, select, analyze, generate, branch, commit, PR, status update.
func TestTicketToPullRequestWorkflow(t *testing.T) {
	mockLLM := mockResponses(relevanceResponse, generateResponse)
	services, tracker, host := pipelineServices(t, []ticketflow.Ticket{poolTicket()}, mockLLM)

	batch, err := ticketflow.NewRunner(runnerConfig(), services).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, batch.Considered)
	assert.Equal(t, 1, batch.Processed)
	assert.Equal(t, 0, batch.Failed)

	require.Len(t, batch.Results, 1)
	res := batch.Results[0]
	assert.Equal(t, "PROJ-7", res.TicketKey)
	assert.Equal(t, ticketflow.OutcomeCompleted, res.Outcome)
	assert.Equal(t, "acme/search-api", res.Repo, "relevance scoring should pick search-api")
	assert.NotEmpty(t, res.PRURL)

	// One relevance call plus one generation call.
	assert.Equal(t, 2, mockLLM.CallCount())

	// Branch created from the sanitized ticket key, then one commit and one PR.
	require.Len(t, host.CreatedBranches, 1)
	assert.Equal(t, "acme/search-api:feature/jira-proj-7", host.CreatedBranches[0])
	require.Len(t, host.Commits, 1)
	assert.Contains(t, host.Commits[0], "PROJ-7: ")
	require.Len(t, host.OpenedPRs, 1)
	pr := host.OpenedPRs[0]
	assert.False(t, pr.Draft, "a passing gate should open a ready PR")
	assert.Equal(t, "main", pr.Base)
	assert.Contains(t, pr.Title, "PROJ-7")
	assert.Contains(t, pr.Labels, "automated")

	// Ticket claimed at branch time, then moved on after the PR.
	require.Len(t, tracker.Transitions, 2)
	assert.Equal(t, [2]string{"PROJ-7", "In Progress"}, tracker.Transitions[0])
	assert.Equal(t, [2]string{"PROJ-7", "In Review"}, tracker.Transitions[1])

	require.Len(t, tracker.Comments, 1)
	assert.Contains(t, tracker.Comments[0][1], res.PRURL)
}

// TestNeedsReviewOpensDraft verifies a sensitive change ends as a draft PR.
func TestNeedsReviewOpensDraft(t *testing.T) {
	mockLLM := mockResponses(relevanceResponse, reviewGenerateResponse)
	services, tracker, host := pipelineServices(t, []ticketflow.Ticket{poolTicket()}, mockLLM)

	batch, err := ticketflow.NewRunner(runnerConfig(), services).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, batch.Results, 1)
	assert.Equal(t, ticketflow.OutcomeReviewPending, batch.Results[0].Outcome)
	assert.Equal(t, 1, batch.Processed, "review-pending counts as processed")

	require.Len(t, host.OpenedPRs, 1)
	assert.True(t, host.OpenedPRs[0].Draft, "review-flagged change should open a draft")
	assert.Contains(t, host.OpenedPRs[0].Body, "## Review Required")

	require.Len(t, tracker.Transitions, 2)
	assert.Equal(t, [2]string{"PROJ-7", "Needs Review"}, tracker.Transitions[1])
	require.Len(t, tracker.Comments, 1)
	assert.Contains(t, tracker.Comments[0][1], "Draft pull request")
}

// TestGateRejectFailsTicket verifies a forbidden path stops the run before
// any branch or PR is created.
func TestGateRejectFailsTicket(t *testing.T) {
	mockLLM := mockResponses(relevanceResponse, rejectGenerateResponse)
	services, tracker, host := pipelineServices(t, []ticketflow.Ticket{poolTicket()}, mockLLM)

	batch, err := ticketflow.NewRunner(runnerConfig(), services).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, batch.Results, 1)
	assert.Equal(t, ticketflow.OutcomeFailed, batch.Results[0].Outcome)
	assert.Equal(t, 1, batch.Failed)

	assert.Empty(t, host.CreatedBranches)
	assert.Empty(t, host.OpenedPRs)
	assert.Empty(t, tracker.Transitions)
}

// TestDryRunLeavesNoFootprint verifies dry-run exercises the whole pipeline
// without touching the tracker or the host.
func TestDryRunLeavesNoFootprint(t *testing.T) {
	mockLLM := mockResponses(relevanceResponse, generateResponse)
	services, tracker, host := pipelineServices(t, []ticketflow.Ticket{poolTicket()}, mockLLM)

	cfg := runnerConfig()
	cfg.DryRun = true

	batch, err := ticketflow.NewRunner(cfg, services).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, batch.Results, 1)
	assert.Equal(t, ticketflow.OutcomeCompleted, batch.Results[0].Outcome)
	assert.Equal(t, 2, mockLLM.CallCount(), "dry-run still exercises the model")

	assert.Empty(t, host.CreatedBranches)
	assert.Empty(t, host.Commits)
	assert.Empty(t, host.OpenedPRs)
	assert.Empty(t, tracker.Transitions)
	assert.Empty(t, tracker.Comments)
}

// TestTransientFailureRetriesAndRecovers verifies the recovery wrapper retries
// a flaky host call and the run still completes.
func TestTransientFailureRetriesAndRecovers(t *testing.T) {
	mockLLM := mockResponses(relevanceResponse, generateResponse)
	services, _, host := pipelineServices(t, []ticketflow.Ticket{poolTicket()}, mockLLM)

	attempts := 0
	host.CreateBranchFunc = func(ctx context.Context, repo ticketflow.Repo, branch string) error {
		attempts++
		if attempts == 1 {
			return context.DeadlineExceeded
		}
		return nil
	}

	batch, err := ticketflow.NewRunner(runnerConfig(), services).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, attempts, "first attempt fails, retry succeeds")
	require.Len(t, batch.Results, 1)
	res := batch.Results[0]
	assert.Equal(t, ticketflow.OutcomeCompleted, res.Outcome)

	require.NotEmpty(t, res.Errors, "the transient failure should be on record")
	assert.Equal(t, ticketflow.KindTransient, res.Errors[0].Kind)
}

// TestBatchProcessesWholePool verifies the batch loop drains a multi-ticket
// pool without handling any ticket twice.
func TestBatchProcessesWholePool(t *testing.T) {
	tickets := []ticketflow.Ticket{
		{Key: "PROJ-1", Summary: "Fix pagination in search endpoint"},
		{Key: "PROJ-2", Summary: "Improve search result ranking"},
		{Key: "PROJ-3", Summary: "Paginate the admin search view"},
	}

	// Relevance answers interleave with generations, so route by prompt
	// content instead of call order.
	mockLLM := llm.NewMockClient("").WithCompleteFunc(relevanceOrGenerate)
	services, _, host := pipelineServices(t, tickets, mockLLM)

	cfg := runnerConfig()
	cfg.MaxTickets = 10

	batch, err := ticketflow.NewRunner(cfg, services).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Considered, "pool drains before the cap")
	assert.Equal(t, 3, batch.Processed)
	assert.Equal(t, batch.Considered, batch.Processed+batch.Skipped+batch.Failed)
	assert.Len(t, host.OpenedPRs, 3)

	seen := map[string]bool{}
	for _, res := range batch.Results {
		assert.False(t, seen[res.TicketKey], "ticket %s handled twice", res.TicketKey)
		seen[res.TicketKey] = true
	}
}
