package ticketflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
	llm "github.com/randalmurphal/llmkit/claude"
)

func testTicket() Ticket {
	return Ticket{
		ID:      "10001",
		Key:     "PROJ-42",
		Summary: "Fix pagination in search endpoint",
		Status:  "To Do",
		URL:     "https://example.atlassian.net/browse/PROJ-42",
	}
}

func testRepo() Repo {
	return Repo{Owner: "acme", Name: "search-api", DefaultBranch: "main", Relevance: 0.9}
}

func testChange() GeneratedChange {
	return GeneratedChange{
		Edits: []FileEdit{
			{Path: "internal/search/page.go", Action: "modify", Content: "package search\n"},
		},
		Summary:  "Clamp page size to the configured maximum",
		TestPlan: "- Request page sizes above the limit and confirm clamping",
	}
}

func testParams() Params {
	p := DefaultParams()
	p.Org = "acme"
	return p
}

// nodeCtx builds the context a node sees in a real run.
func nodeCtx(s Services, p Params) flowgraph.Context {
	return flowgraph.NewContext(s.InjectAll(WithParams(context.Background(), p)))
}

// =============================================================================
// Fetch + Select Tests
// =============================================================================

func TestFetchTicketsNode_FiltersExcluded(t *testing.T) {
	tracker := &MockTracker{
		FetchOpenTicketsFunc: func(context.Context) ([]Ticket, error) {
			return []Ticket{{Key: "PROJ-1"}, {Key: "PROJ-2"}, {Key: "PROJ-3"}}, nil
		},
	}
	ctx := nodeCtx(Services{Tracker: tracker}, testParams())

	state := NewWorkflowState("run")
	state.ExcludedKeys = []string{"PROJ-2"}

	result, err := FetchTicketsNode(ctx, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Tickets) != 2 {
		t.Fatalf("Tickets len = %d, want 2", len(result.Tickets))
	}
	for _, tk := range result.Tickets {
		if tk.Key == "PROJ-2" {
			t.Error("excluded ticket survived the filter")
		}
	}
}

func TestFetchTicketsNode_SkipsParkedTickets(t *testing.T) {
	tracker := &MockTracker{
		FetchOpenTicketsFunc: func(context.Context) ([]Ticket, error) {
			return []Ticket{
				{Key: "PROJ-1"},
				{Key: "PROJ-2", Labels: []string{"backend", SkipLabel}},
				{Key: "PROJ-3", Labels: []string{"To-Be-Decided"}},
			}, nil
		},
	}
	ctx := nodeCtx(Services{Tracker: tracker}, testParams())

	result, err := FetchTicketsNode(ctx, NewWorkflowState("run"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Tickets) != 1 || result.Tickets[0].Key != "PROJ-1" {
		t.Errorf("Tickets = %+v, want only PROJ-1", result.Tickets)
	}
}

func TestFetchTicketsNode_PropagatesError(t *testing.T) {
	tracker := &MockTracker{
		FetchOpenTicketsFunc: func(context.Context) ([]Ticket, error) {
			return nil, errors.New("jira: 503 service unavailable")
		},
	}
	ctx := nodeCtx(Services{Tracker: tracker}, testParams())

	_, err := FetchTicketsNode(ctx, NewWorkflowState("run"))
	if err == nil {
		t.Fatal("expected error")
	}
	if Classify(err) != KindTransient {
		t.Errorf("Classify = %q, want transient", Classify(err))
	}
}

func TestSelectTicketNode(t *testing.T) {
	ctx := nodeCtx(Services{}, testParams())

	t.Run("empty pool skips the run", func(t *testing.T) {
		result, err := SelectTicketNode(ctx, NewWorkflowState("run"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeSkipped {
			t.Errorf("Outcome = %q, want skipped", result.Outcome)
		}
	})

	t.Run("picks from the pool", func(t *testing.T) {
		pool := []Ticket{{Key: "PROJ-1"}, {Key: "PROJ-2"}, {Key: "PROJ-3"}}
		result, err := SelectTicketNode(ctx, NewWorkflowState("run").WithTickets(pool))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Ticket == nil {
			t.Fatal("no ticket selected")
		}
		found := false
		for _, tk := range pool {
			if tk.Key == result.Ticket.Key {
				found = true
			}
		}
		if !found {
			t.Errorf("selected %q not in pool", result.Ticket.Key)
		}
	})

	t.Run("selection is roughly uniform", func(t *testing.T) {
		pool := []Ticket{{Key: "PROJ-1"}, {Key: "PROJ-2"}, {Key: "PROJ-3"}, {Key: "PROJ-4"}}
		const runs = 400

		counts := map[string]int{}
		for i := 0; i < runs; i++ {
			result, err := SelectTicketNode(ctx, NewWorkflowState("run").WithTickets(pool))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			counts[result.Ticket.Key]++
		}

		// Expected 100 per ticket; generous bounds keep this stable.
		for _, tk := range pool {
			if got := counts[tk.Key]; got < 60 || got > 140 {
				t.Errorf("counts[%s] = %d over %d runs, want near %d", tk.Key, got, runs, runs/len(pool))
			}
		}
	})

	t.Run("forced key selected", func(t *testing.T) {
		state := NewWorkflowState("run").WithTickets([]Ticket{{Key: "PROJ-1"}, {Key: "PROJ-2"}})
		state.ForcedKey = "PROJ-2"

		result, err := SelectTicketNode(ctx, state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Ticket == nil || result.Ticket.Key != "PROJ-2" {
			t.Errorf("Ticket = %+v, want PROJ-2", result.Ticket)
		}
	})

	t.Run("forced key missing fails the run", func(t *testing.T) {
		state := NewWorkflowState("run").WithTickets([]Ticket{{Key: "PROJ-1"}})
		state.ForcedKey = "PROJ-99"

		result, err := SelectTicketNode(ctx, state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeFailed {
			t.Errorf("Outcome = %q, want failed", result.Outcome)
		}
		if len(result.Errors) != 1 || result.Errors[0].Kind != KindFatal {
			t.Errorf("Errors = %+v", result.Errors)
		}
	})
}

// =============================================================================
// Analyze Tests
// =============================================================================

func TestAnalyzeRepositoriesNode_CacheHit(t *testing.T) {
	cache := &MockRelevanceCache{Entries: map[string][]Repo{
		"PROJ-42": {
			{Owner: "acme", Name: "search-api", Relevance: 0.9},
			{Owner: "acme", Name: "billing", Relevance: 0.1},
		},
	}}
	// No host: a cache hit must not touch it.
	ctx := nodeCtx(Services{Cache: cache}, testParams())

	result, err := AnalyzeRepositoriesNode(ctx, NewWorkflowState("run").WithTicket(testTicket()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Repo == nil || result.Repo.Name != "search-api" {
		t.Fatalf("Repo = %+v, want search-api", result.Repo)
	}
	if len(result.Candidates) != 1 {
		t.Errorf("Candidates = %v, want only the repo above threshold", result.Candidates)
	}
}

func TestAnalyzeRepositoriesNode_LLMScoring(t *testing.T) {
	host := &MockHost{
		ListReposFunc: func(context.Context, string) ([]Repo, error) {
			return []Repo{
				{Owner: "acme", Name: "search-api", DefaultBranch: "main"},
				{Owner: "acme", Name: "billing", DefaultBranch: "main"},
				{Owner: "acme", Name: "website", DefaultBranch: "main"},
			}, nil
		},
	}
	mock := llm.NewMockClient("").WithResponses(
		`{"scores":[{"name":"search-api","relevance":0.9,"reason":"owns search"},{"name":"billing","relevance":0.1,"reason":"unrelated"},{"name":"website","relevance":0.4,"reason":"renders results"}]}`,
	)
	cache := &MockRelevanceCache{}
	services := Services{
		Host:    host,
		LLM:     mock,
		Prompts: NewPromptLoader(t.TempDir()),
		Cache:   cache,
	}

	result, err := AnalyzeRepositoriesNode(nodeCtx(services, testParams()), NewWorkflowState("run").WithTicket(testTicket()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Repo == nil || result.Repo.Name != "search-api" {
		t.Fatalf("Repo = %+v, want search-api", result.Repo)
	}
	if len(result.Candidates) != 2 {
		t.Errorf("Candidates len = %d, want 2 (billing below threshold)", len(result.Candidates))
	}
	if result.Candidates[0].Relevance < result.Candidates[1].Relevance {
		t.Error("candidates not sorted by relevance")
	}
	if _, ok := cache.Entries["PROJ-42"]; !ok {
		t.Error("scores not cached")
	}
}

func TestAnalyzeRepositoriesNode_KeywordFallback(t *testing.T) {
	host := &MockHost{
		ListReposFunc: func(context.Context, string) ([]Repo, error) {
			return []Repo{
				{Owner: "acme", Name: "search-api", Description: "pagination and search endpoint"},
				{Owner: "acme", Name: "billing", Description: "invoices"},
			}, nil
		},
	}
	// No LLM client in context forces the keyword path.
	services := Services{Host: host, Prompts: NewPromptLoader(t.TempDir())}

	result, err := AnalyzeRepositoriesNode(nodeCtx(services, testParams()), NewWorkflowState("run").WithTicket(testTicket()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Repo == nil || result.Repo.Name != "search-api" {
		t.Fatalf("Repo = %+v, want search-api via keyword match", result.Repo)
	}
}

func TestAnalyzeRepositoriesNode_NothingRelevant(t *testing.T) {
	cache := &MockRelevanceCache{Entries: map[string][]Repo{
		"PROJ-42": {{Owner: "acme", Name: "billing", Relevance: 0.05}},
	}}
	ctx := nodeCtx(Services{Cache: cache}, testParams())

	result, err := AnalyzeRepositoriesNode(ctx, NewWorkflowState("run").WithTicket(testTicket()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeSkipped {
		t.Errorf("Outcome = %q, want skipped", result.Outcome)
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0].Message, "no relevant repository") {
		t.Errorf("Errors = %+v, want no-relevant-repository record", result.Errors)
	}
}

func TestAnalyzeRepositoriesNode_CapsCandidates(t *testing.T) {
	cache := &MockRelevanceCache{Entries: map[string][]Repo{
		"PROJ-42": {
			{Owner: "acme", Name: "a", Relevance: 0.9},
			{Owner: "acme", Name: "b", Relevance: 0.8},
			{Owner: "acme", Name: "c", Relevance: 0.7},
			{Owner: "acme", Name: "d", Relevance: 0.6},
			{Owner: "acme", Name: "e", Relevance: 0.5},
		},
	}}
	params := testParams() // MaxRepos 3

	result, err := AnalyzeRepositoriesNode(nodeCtx(Services{Cache: cache}, params), NewWorkflowState("run").WithTicket(testTicket()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Candidates) != 3 {
		t.Errorf("Candidates len = %d, want capped at 3", len(result.Candidates))
	}
	if result.Repo.Name != "a" {
		t.Errorf("Repo = %q, want highest scoring", result.Repo.Name)
	}
}

// =============================================================================
// Generate Tests
// =============================================================================

const goodGenerateResponse = `{
	"summary": "Clamp page size to the configured maximum",
	"test_plan": "- Request page sizes above the limit",
	"edits": [
		{"path": "internal/search/page.go", "action": "modify", "content": "package search\n"}
	]
}`

func TestGenerateCodeNode_Pass(t *testing.T) {
	services := Services{
		LLM:     llm.NewMockClient("").WithResponses(goodGenerateResponse),
		Prompts: NewPromptLoader(t.TempDir()),
	}
	state := NewWorkflowState("run").WithTicket(testTicket()).WithRepo(testRepo())

	result, err := GenerateCodeNode(nodeCtx(services, testParams()), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Change == nil || len(result.Change.Edits) != 1 {
		t.Fatalf("Change = %+v", result.Change)
	}
	if result.Gate != GatePass {
		t.Errorf("Gate = %q, want pass", result.Gate)
	}
	if result.Usage.Calls != 1 {
		t.Errorf("Usage.Calls = %d, want 1", result.Usage.Calls)
	}
}

func TestGenerateCodeNode_FencedResponse(t *testing.T) {
	services := Services{
		LLM:     llm.NewMockClient("").WithResponses("```json\n" + goodGenerateResponse + "\n```"),
		Prompts: NewPromptLoader(t.TempDir()),
	}
	state := NewWorkflowState("run").WithTicket(testTicket()).WithRepo(testRepo())

	result, err := GenerateCodeNode(nodeCtx(services, testParams()), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Change == nil {
		t.Fatal("fenced JSON should still parse")
	}
}

func TestGenerateCodeNode_MalformedResponse(t *testing.T) {
	services := Services{
		LLM:     llm.NewMockClient("").WithResponses("I could not produce a change."),
		Prompts: NewPromptLoader(t.TempDir()),
	}
	state := NewWorkflowState("run").WithTicket(testTicket()).WithRepo(testRepo())

	_, err := GenerateCodeNode(nodeCtx(services, testParams()), state)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrGenerationFailed", err)
	}
}

func TestGenerateCodeNode_GateReject(t *testing.T) {
	response := `{"summary":"s","edits":[{"path":".github/workflows/ci.yml","action":"modify","content":"on: push"}]}`
	services := Services{
		LLM:     llm.NewMockClient("").WithResponses(response),
		Prompts: NewPromptLoader(t.TempDir()),
	}
	state := NewWorkflowState("run").WithTicket(testTicket()).WithRepo(testRepo())

	result, err := GenerateCodeNode(nodeCtx(services, testParams()), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %q, want failed on gate rejection", result.Outcome)
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0].Message, "rejected by quality gate") {
		t.Errorf("Errors = %+v", result.Errors)
	}
}

func TestGenerateCodeNode_NeedsReview(t *testing.T) {
	response := `{"summary":"s","edits":[{"path":"internal/auth/token.go","action":"modify","content":"package auth\n"}]}`
	services := Services{
		LLM:     llm.NewMockClient("").WithResponses(response),
		Prompts: NewPromptLoader(t.TempDir()),
	}
	state := NewWorkflowState("run").WithTicket(testTicket()).WithRepo(testRepo())

	result, err := GenerateCodeNode(nodeCtx(services, testParams()), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Gate != GateNeedsReview {
		t.Fatalf("Gate = %q, want needs_review", result.Gate)
	}
	if result.Outcome != "" {
		t.Errorf("Outcome = %q, want unset (pipeline continues to draft PR)", result.Outcome)
	}
	if len(result.Metrics.ReviewReasons) == 0 {
		t.Error("review reasons not recorded")
	}
}

func TestParseGeneratedChange_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", goodGenerateResponse, false},
		{"not json", "nope", true},
		{"no edits", `{"summary":"s","edits":[]}`, true},
		{"empty path", `{"edits":[{"path":"","action":"create","content":"x"}]}`, true},
		{"unknown action", `{"edits":[{"path":"a.go","action":"rename","content":"x"}]}`, true},
		{"create without content", `{"edits":[{"path":"a.go","action":"create"}]}`, true},
		{"delete without content is fine", `{"edits":[{"path":"a.go","action":"delete"}]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseGeneratedChange(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseGeneratedChange() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Branch + Commit Tests
// =============================================================================

func TestCreateBranchNode(t *testing.T) {
	state := NewWorkflowState("run").
		WithTicket(testTicket()).
		WithRepo(testRepo()).
		WithChange(testChange(), QualityMetrics{FilesChanged: 1, LinesChanged: 1})

	t.Run("creates branch and claims ticket", func(t *testing.T) {
		host := &MockHost{}
		tracker := &MockTracker{}
		params := testParams()
		params.BotAccountID = "bot-123"

		result, err := CreateBranchNode(nodeCtx(Services{Host: host, Tracker: tracker}, params), state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Branch != "feature/jira-proj-42" {
			t.Errorf("Branch = %q", result.Branch)
		}
		if len(host.CreatedBranches) != 1 || host.CreatedBranches[0] != "acme/search-api:feature/jira-proj-42" {
			t.Errorf("CreatedBranches = %v", host.CreatedBranches)
		}
		if len(tracker.Transitions) != 1 || tracker.Transitions[0] != [2]string{"PROJ-42", "In Progress"} {
			t.Errorf("Transitions = %v", tracker.Transitions)
		}
	})

	t.Run("pre-existing branch skips creation", func(t *testing.T) {
		host := &MockHost{
			BranchExistsFunc: func(context.Context, Repo, string) (bool, error) { return true, nil },
		}
		tracker := &MockTracker{}

		result, err := CreateBranchNode(nodeCtx(Services{Host: host, Tracker: tracker}, testParams()), state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(host.CreatedBranches) != 0 {
			t.Errorf("CreatedBranches = %v, want none", host.CreatedBranches)
		}
		if result.Branch != "feature/jira-proj-42" {
			t.Errorf("Branch = %q, want the reused branch", result.Branch)
		}
		if len(result.Errors) != 1 || result.Errors[0].Kind != KindConflict {
			t.Errorf("Errors = %+v, want one conflict record", result.Errors)
		}
	})

	t.Run("existing branch is reused", func(t *testing.T) {
		host := &MockHost{
			CreateBranchFunc: func(context.Context, Repo, string) error { return ErrBranchExists },
		}
		tracker := &MockTracker{}

		result, err := CreateBranchNode(nodeCtx(Services{Host: host, Tracker: tracker}, testParams()), state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Branch == "" {
			t.Error("branch should be set despite conflict")
		}
		if len(result.Errors) != 1 || result.Errors[0].Kind != KindConflict {
			t.Errorf("Errors = %+v, want one conflict record", result.Errors)
		}
	})

	t.Run("dry run touches nothing", func(t *testing.T) {
		host := &MockHost{}
		tracker := &MockTracker{}
		dry := state
		dry.DryRun = true

		result, err := CreateBranchNode(nodeCtx(Services{Host: host, Tracker: tracker}, testParams()), dry)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Branch == "" {
			t.Error("dry run still computes the branch name")
		}
		if len(host.CreatedBranches) != 0 || len(tracker.Transitions) != 0 {
			t.Error("dry run must not call host or tracker")
		}
	})
}

func TestCommitChangesNode(t *testing.T) {
	state := NewWorkflowState("run").
		WithTicket(testTicket()).
		WithRepo(testRepo()).
		WithChange(testChange(), QualityMetrics{FilesChanged: 1, LinesChanged: 1}).
		WithBranch("feature/jira-proj-42")

	t.Run("commits and records sha", func(t *testing.T) {
		host := &MockHost{}

		result, err := CommitChangesNode(nodeCtx(Services{Host: host}, testParams()), state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.CommitSH != "abc1234" {
			t.Errorf("CommitSH = %q", result.CommitSH)
		}
		if len(host.Commits) != 1 || !strings.HasPrefix(host.Commits[0], "PROJ-42: ") {
			t.Errorf("Commits = %v", host.Commits)
		}
	})

	t.Run("refuses protected branches", func(t *testing.T) {
		host := &MockHost{}
		onMain := state
		onMain.Branch = "main"

		_, err := CommitChangesNode(nodeCtx(Services{Host: host}, testParams()), onMain)
		if !errors.Is(err, ErrProtectedBranch) {
			t.Errorf("err = %v, want ErrProtectedBranch", err)
		}
		if len(host.Commits) != 0 {
			t.Errorf("Commits = %v, want none", host.Commits)
		}
	})

	t.Run("wraps host failure", func(t *testing.T) {
		host := &MockHost{
			CommitChangesFunc: func(context.Context, Repo, string, string, []FileEdit) (string, error) {
				return "", errors.New("tree write denied")
			},
		}

		_, err := CommitChangesNode(nodeCtx(Services{Host: host}, testParams()), state)
		if !errors.Is(err, ErrCommitFailed) {
			t.Errorf("err = %v, want ErrCommitFailed", err)
		}
	})

	t.Run("dry run skips the host", func(t *testing.T) {
		host := &MockHost{}
		dry := state
		dry.DryRun = true

		result, err := CommitChangesNode(nodeCtx(Services{Host: host}, testParams()), dry)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.CommitSH != "dry-run" {
			t.Errorf("CommitSH = %q, want dry-run marker", result.CommitSH)
		}
		if len(host.Commits) != 0 {
			t.Error("dry run must not commit")
		}
	})
}

func TestCommitMessage(t *testing.T) {
	msg := CommitMessage(testTicket(), testChange())
	lines := strings.Split(msg, "\n")

	if lines[0] != "PROJ-42: Fix pagination in search endpoint" {
		t.Errorf("subject = %q", lines[0])
	}
	if lines[1] != "" {
		t.Error("subject must be followed by a blank line")
	}
	if !strings.Contains(msg, "Ticket: https://example.atlassian.net/browse/PROJ-42") {
		t.Errorf("message missing ticket link:\n%s", msg)
	}
}

func TestCommitMessage_TruncatesSubject(t *testing.T) {
	ticket := testTicket()
	ticket.Summary = strings.Repeat("very long summary ", 10)

	msg := CommitMessage(ticket, testChange())
	subject := strings.SplitN(msg, "\n", 2)[0]

	if len(subject) > 72 {
		t.Errorf("subject len = %d, want <= 72", len(subject))
	}
	if !strings.HasSuffix(subject, "...") {
		t.Errorf("truncated subject %q missing ellipsis", subject)
	}
}

// =============================================================================
// PR + Status Tests
// =============================================================================

func prReadyState() WorkflowState {
	state := NewWorkflowState("run").
		WithTicket(testTicket()).
		WithRepo(testRepo()).
		WithChange(testChange(), QualityMetrics{FilesChanged: 1, LinesChanged: 2}).
		WithBranch("feature/jira-proj-42")
	state.CommitSH = "abc1234"
	return state
}

func TestOpenPullRequestNode(t *testing.T) {
	t.Run("opens pr with labels", func(t *testing.T) {
		host := &MockHost{}

		result, err := OpenPullRequestNode(nodeCtx(Services{Host: host}, testParams()), prReadyState())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.PRNumber != 1 || result.PRURL == "" {
			t.Errorf("PR = %d %q", result.PRNumber, result.PRURL)
		}
		if len(host.OpenedPRs) != 1 {
			t.Fatalf("OpenedPRs = %v", host.OpenedPRs)
		}
		opts := host.OpenedPRs[0]
		if opts.Draft {
			t.Error("passing change must not open a draft")
		}
		if opts.Base != "main" {
			t.Errorf("Base = %q, want default branch", opts.Base)
		}
		if len(opts.Labels) != 1 || opts.Labels[0] != "automated" {
			t.Errorf("Labels = %v", opts.Labels)
		}
	})

	t.Run("needs review opens a draft", func(t *testing.T) {
		host := &MockHost{}
		state := prReadyState()
		state.Gate = GateNeedsReview
		state.Metrics.ReviewReasons = []string{"ticket mentions payment"}

		_, err := OpenPullRequestNode(nodeCtx(Services{Host: host}, testParams()), state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !host.OpenedPRs[0].Draft {
			t.Error("needs_review change must open a draft PR")
		}
	})

	t.Run("existing pr is a conflict not a failure", func(t *testing.T) {
		host := &MockHost{
			OpenPullRequestFunc: func(context.Context, PROptions) (*PullRequest, error) {
				return nil, ErrPRExists
			},
		}

		result, err := OpenPullRequestNode(nodeCtx(Services{Host: host}, testParams()), prReadyState())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.PRNumber != -1 {
			t.Errorf("PRNumber = %d, want -1 sentinel", result.PRNumber)
		}
		if len(result.Errors) != 1 || result.Errors[0].Kind != KindConflict {
			t.Errorf("Errors = %+v", result.Errors)
		}
	})

	t.Run("dry run opens nothing", func(t *testing.T) {
		host := &MockHost{}
		state := prReadyState()
		state.DryRun = true

		result, err := OpenPullRequestNode(nodeCtx(Services{Host: host}, testParams()), state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(host.OpenedPRs) != 0 {
			t.Error("dry run must not open a PR")
		}
		if !strings.HasPrefix(result.PRURL, "dry-run://") {
			t.Errorf("PRURL = %q", result.PRURL)
		}
	})
}

func TestPRBody(t *testing.T) {
	body := PRBody(testTicket(), testChange(), QualityMetrics{FilesChanged: 1, LinesChanged: 2}, GatePass)

	for _, section := range []string{"## Summary", "## Changes Made", "## Jira Ticket", "## Test Plan"} {
		if !strings.Contains(body, section) {
			t.Errorf("body missing %q section:\n%s", section, body)
		}
	}
	if !strings.Contains(body, "`internal/search/page.go` (modify)") {
		t.Errorf("body missing edit listing:\n%s", body)
	}
	if strings.Contains(body, "## Review Required") {
		t.Error("passing change must not carry a review section")
	}
}

func TestPRBody_ReviewSection(t *testing.T) {
	metrics := QualityMetrics{FilesChanged: 1, LinesChanged: 2, ReviewReasons: []string{"ticket mentions payment"}}
	body := PRBody(testTicket(), testChange(), metrics, GateNeedsReview)

	if !strings.Contains(body, "## Review Required") || !strings.Contains(body, "ticket mentions payment") {
		t.Errorf("review section missing:\n%s", body)
	}
}

func TestUpdateTicketStatusNode(t *testing.T) {
	t.Run("completed transitions to done status", func(t *testing.T) {
		tracker := &MockTracker{}
		state := prReadyState()
		state.PRNumber = 7
		state.PRURL = "https://example.com/acme/search-api/pull/7"

		result, err := UpdateTicketStatusNode(nodeCtx(Services{Tracker: tracker}, testParams()), state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeCompleted {
			t.Errorf("Outcome = %q, want completed", result.Outcome)
		}
		if len(tracker.Transitions) != 1 || tracker.Transitions[0][1] != "In Review" {
			t.Errorf("Transitions = %v", tracker.Transitions)
		}
		if len(tracker.Comments) != 1 || !strings.Contains(tracker.Comments[0][1], state.PRURL) {
			t.Errorf("Comments = %v", tracker.Comments)
		}
	})

	t.Run("needs review transitions to review status", func(t *testing.T) {
		tracker := &MockTracker{}
		state := prReadyState()
		state.Gate = GateNeedsReview
		state.PRURL = "https://example.com/acme/search-api/pull/8"

		result, err := UpdateTicketStatusNode(nodeCtx(Services{Tracker: tracker}, testParams()), state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeReviewPending {
			t.Errorf("Outcome = %q, want review_pending", result.Outcome)
		}
		if tracker.Transitions[0][1] != "Needs Review" {
			t.Errorf("Transitions = %v", tracker.Transitions)
		}
		if !strings.Contains(tracker.Comments[0][1], "Draft pull request") {
			t.Errorf("Comments = %v", tracker.Comments)
		}
	})

	t.Run("tracker failure never fails the run", func(t *testing.T) {
		tracker := &MockTracker{
			TransitionTicketFunc: func(context.Context, string, string) error {
				return errors.New("jira: 503")
			},
		}

		result, err := UpdateTicketStatusNode(nodeCtx(Services{Tracker: tracker}, testParams()), prReadyState())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeCompleted {
			t.Errorf("Outcome = %q, want completed despite tracker failure", result.Outcome)
		}
		if len(result.Errors) != 1 || result.Errors[0].Kind != KindTransient {
			t.Errorf("Errors = %+v", result.Errors)
		}
	})

	t.Run("dry run touches nothing", func(t *testing.T) {
		tracker := &MockTracker{}
		state := prReadyState()
		state.DryRun = true

		result, err := UpdateTicketStatusNode(nodeCtx(Services{Tracker: tracker}, testParams()), state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeCompleted {
			t.Errorf("Outcome = %q", result.Outcome)
		}
		if len(tracker.Transitions) != 0 || len(tracker.Comments) != 0 {
			t.Error("dry run must not call the tracker")
		}
	})
}
