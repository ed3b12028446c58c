package ticketflow

import (
	"fmt"
	"time"
)

// ============================================================================
// Domain types
// ============================================================================

// Ticket is a unit of work fetched from the issue tracker.
type Ticket struct {
	ID          string   `json:"id"`
	Key         string   `json:"key"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Labels      []string `json:"labels,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// Repo identifies a candidate repository for a ticket.
type Repo struct {
	Owner         string  `json:"owner"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	DefaultBranch string  `json:"default_branch"`
	Language      string  `json:"language,omitempty"`
	Relevance     float64 `json:"relevance"`
}

// FullName returns the owner/name form used by hosting APIs.
func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// FileEdit is one file-level change inside a generated changeset.
type FileEdit struct {
	Path    string `json:"path"`
	Action  string `json:"action"` // create, modify, delete
	Content string `json:"content,omitempty"`
}

// GeneratedChange is the full changeset the LLM produced for a ticket.
type GeneratedChange struct {
	Edits     []FileEdit `json:"edits"`
	Summary   string     `json:"summary"`
	TestPlan  string     `json:"test_plan,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
}

// LinesChanged counts total lines across all edits.
func (c GeneratedChange) LinesChanged() int {
	total := 0
	for _, e := range c.Edits {
		total += countLines(e.Content)
	}
	return total
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}

// QualityMetrics summarizes a changeset for the quality gate.
type QualityMetrics struct {
	FilesChanged  int      `json:"files_changed"`
	LinesChanged  int      `json:"lines_changed"`
	Complexity    int      `json:"complexity"`
	SecurityFlags []string `json:"security_flags,omitempty"`
	ReviewReasons []string `json:"review_reasons,omitempty"`
}

// TokenUsage accumulates LLM consumption across a workflow run.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	Calls        int `json:"calls"`
}

// ErrorRecord captures a single failure during a run, classified.
type ErrorRecord struct {
	Node      string    `json:"node"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
}

// ============================================================================
// Outcomes
// ============================================================================

// Outcome is the terminal disposition of a ticket after a workflow run.
type Outcome string

const (
	// OutcomeCompleted means a PR was opened and the ticket transitioned.
	OutcomeCompleted Outcome = "completed"

	// OutcomeSkipped means the ticket was passed over without side effects.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed means processing stopped on a fatal or exhausted error.
	OutcomeFailed Outcome = "failed"

	// OutcomeReviewPending means a draft PR was opened awaiting human review.
	OutcomeReviewPending Outcome = "review_pending"
)

// Terminal reports whether the outcome is absorbing: once set, no node
// may run for the ticket again.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeCompleted, OutcomeSkipped, OutcomeFailed, OutcomeReviewPending:
		return true
	}
	return false
}

// ============================================================================
// Workflow state
// ============================================================================

// WorkflowState carries everything a single ticket's pipeline run knows.
// Nodes receive it by value and return an updated copy; the builder methods
// below keep that copy-and-extend pattern readable.
type WorkflowState struct {
	RunID  string `json:"run_id"`
	DryRun bool   `json:"dry_run"`

	Tickets      []Ticket `json:"tickets,omitempty"`
	ExcludedKeys []string `json:"excluded_keys,omitempty"`
	ForcedKey    string   `json:"forced_key,omitempty"`
	Ticket       *Ticket  `json:"ticket,omitempty"`

	Candidates []Repo `json:"candidates,omitempty"`
	Repo       *Repo  `json:"repo,omitempty"`

	Change  *GeneratedChange `json:"change,omitempty"`
	Metrics *QualityMetrics  `json:"metrics,omitempty"`
	Gate    GateDecision     `json:"gate,omitempty"`

	Branch   string `json:"branch,omitempty"`
	CommitSH string `json:"commit_sha,omitempty"`
	PRNumber int    `json:"pr_number,omitempty"`
	PRURL    string `json:"pr_url,omitempty"`

	Outcome Outcome       `json:"outcome,omitempty"`
	Errors  []ErrorRecord `json:"errors,omitempty"`
	Usage   TokenUsage    `json:"usage"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// NewWorkflowState creates the initial state for a run.
func NewWorkflowState(runID string) WorkflowState {
	return WorkflowState{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}
}

// WithTickets returns a copy with the fetched ticket pool set.
func (s WorkflowState) WithTickets(tickets []Ticket) WorkflowState {
	s.Tickets = tickets
	return s
}

// WithTicket returns a copy with the selected ticket set.
func (s WorkflowState) WithTicket(t Ticket) WorkflowState {
	s.Ticket = &t
	return s
}

// WithCandidates returns a copy with the scored repository candidates set.
func (s WorkflowState) WithCandidates(repos []Repo) WorkflowState {
	s.Candidates = repos
	return s
}

// WithRepo returns a copy with the chosen repository set.
func (s WorkflowState) WithRepo(r Repo) WorkflowState {
	s.Repo = &r
	return s
}

// WithChange returns a copy with the generated changeset and its metrics set.
func (s WorkflowState) WithChange(c GeneratedChange, m QualityMetrics) WorkflowState {
	s.Change = &c
	s.Metrics = &m
	return s
}

// WithBranch returns a copy with the working branch name set.
func (s WorkflowState) WithBranch(branch string) WorkflowState {
	s.Branch = branch
	return s
}

// WithOutcome returns a copy with the terminal outcome set. Setting an
// outcome twice is a programming error and panics.
func (s WorkflowState) WithOutcome(o Outcome) WorkflowState {
	if s.Outcome.Terminal() {
		panic(fmt.Sprintf("outcome already set to %q, cannot set %q", s.Outcome, o))
	}
	s.Outcome = o
	s.FinishedAt = time.Now().UTC()
	return s
}

// AddTokens accumulates LLM usage into the run total.
func (s *WorkflowState) AddTokens(input, output int) {
	s.Usage.InputTokens += input
	s.Usage.OutputTokens += output
	s.Usage.Calls++
}

// RecordError appends a classified failure to the run history.
func (s *WorkflowState) RecordError(node string, kind ErrorKind, attempt int, err error) {
	s.Errors = append(s.Errors, ErrorRecord{
		Node:      node,
		Kind:      kind,
		Message:   err.Error(),
		Attempt:   attempt,
		Timestamp: time.Now().UTC(),
	})
}

// StateRequirement names a precondition a node declares on entry.
type StateRequirement string

const (
	RequireTicket StateRequirement = "ticket"
	RequireRepo   StateRequirement = "repo"
	RequireChange StateRequirement = "change"
	RequireBranch StateRequirement = "branch"
	RequireCommit StateRequirement = "commit"
	RequirePR     StateRequirement = "pr"
)

// Validate checks node preconditions. A violation is a wiring bug in the
// graph, not a runtime condition, so the error is always fatal.
func (s WorkflowState) Validate(reqs ...StateRequirement) error {
	for _, req := range reqs {
		var ok bool
		switch req {
		case RequireTicket:
			ok = s.Ticket != nil
		case RequireRepo:
			ok = s.Repo != nil
		case RequireChange:
			ok = s.Change != nil
		case RequireBranch:
			ok = s.Branch != ""
		case RequireCommit:
			ok = s.CommitSH != ""
		case RequirePR:
			ok = s.PRNumber != 0
		default:
			return fmt.Errorf("unknown state requirement %q", req)
		}
		if !ok {
			return fmt.Errorf("state requirement not met: %s", req)
		}
	}
	return nil
}

// ============================================================================
// Batch accounting
// ============================================================================

// TicketResult is the per-ticket line item inside a batch run.
type TicketResult struct {
	TicketKey string        `json:"ticket_key"`
	Outcome   Outcome       `json:"outcome"`
	Repo      string        `json:"repo,omitempty"`
	PRURL     string        `json:"pr_url,omitempty"`
	Errors    []ErrorRecord `json:"errors,omitempty"`
	Usage     TokenUsage    `json:"usage"`
	Duration  time.Duration `json:"duration"`
}

// BatchResult aggregates an orchestrator run over many tickets.
//
// Invariant: Processed + Skipped + Failed == Considered, where review-pending
// tickets count as processed.
type BatchResult struct {
	RunID      string         `json:"run_id"`
	Considered int            `json:"considered"`
	Processed  int            `json:"processed"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	Results    []TicketResult `json:"results"`
	Usage      TokenUsage     `json:"usage"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Record folds one ticket's final state into the batch tallies.
func (b *BatchResult) Record(state WorkflowState) {
	res := TicketResult{
		Outcome:  state.Outcome,
		PRURL:    state.PRURL,
		Errors:   state.Errors,
		Usage:    state.Usage,
		Duration: state.FinishedAt.Sub(state.StartedAt),
	}
	if state.Ticket != nil {
		res.TicketKey = state.Ticket.Key
	}
	if state.Repo != nil {
		res.Repo = state.Repo.FullName()
	}

	b.Considered++
	switch state.Outcome {
	case OutcomeCompleted, OutcomeReviewPending:
		b.Processed++
	case OutcomeSkipped:
		b.Skipped++
	default:
		b.Failed++
	}
	b.Usage.InputTokens += state.Usage.InputTokens
	b.Usage.OutputTokens += state.Usage.OutputTokens
	b.Usage.Calls += state.Usage.Calls
	b.Results = append(b.Results, res)
}
