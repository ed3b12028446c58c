package ticketflow

import (
	"context"
	"fmt"

	llm "github.com/randalmurphal/llmkit/claude"
)

// ============================================================================
// Collaborator interfaces
// ============================================================================

// Tracker is the issue tracker the pipeline reads tickets from and reports
// progress back to.
type Tracker interface {
	// FetchOpenTickets returns unassigned tickets eligible for automation.
	FetchOpenTickets(ctx context.Context) ([]Ticket, error)

	// TransitionTicket moves a ticket to the named status.
	TransitionTicket(ctx context.Context, key, status string) error

	// AddComment posts a progress comment on a ticket.
	AddComment(ctx context.Context, key, body string) error

	// AssignTicket assigns a ticket to the automation account.
	AssignTicket(ctx context.Context, key, accountID string) error
}

// PROptions describes the pull request to open after a commit lands.
type PROptions struct {
	Repo   Repo
	Branch string
	Base   string
	Title  string
	Body   string
	Draft  bool
	Labels []string
}

// PullRequest is the host's record of an opened PR.
type PullRequest struct {
	Number int
	URL    string
}

// Host is the code hosting provider the pipeline pushes branches, commits,
// and pull requests to.
type Host interface {
	// ListRepos returns the organization's repositories as PR candidates.
	ListRepos(ctx context.Context, org string) ([]Repo, error)

	// BranchExists reports whether branch already exists in repo.
	BranchExists(ctx context.Context, repo Repo, branch string) (bool, error)

	// CreateBranch creates branch from the repo's default branch head.
	// Returns ErrBranchExists if the branch is already present.
	CreateBranch(ctx context.Context, repo Repo, branch string) error

	// CommitChanges applies edits as a single commit on branch and
	// returns the new commit SHA.
	CommitChanges(ctx context.Context, repo Repo, branch, message string, edits []FileEdit) (string, error)

	// OpenPullRequest opens a PR and returns it. Returns ErrPRExists when
	// an open PR for the branch already exists.
	OpenPullRequest(ctx context.Context, opts PROptions) (*PullRequest, error)
}

// RelevanceCache stores repository analysis results per ticket so repeated
// batch runs skip the LLM call. Implementations expire stale entries.
type RelevanceCache interface {
	Get(ticketKey string) ([]Repo, bool)
	Put(ticketKey string, repos []Repo) error
}

// ============================================================================
// Context injection
// ============================================================================

type serviceContextKey string

const (
	trackerKey serviceContextKey = "ticketflow.tracker"
	hostKey    serviceContextKey = "ticketflow.host"
	llmKey     serviceContextKey = "ticketflow.llm"
	promptsKey serviceContextKey = "ticketflow.prompts"
	cacheKey   serviceContextKey = "ticketflow.cache"
)

// WithTracker returns a context carrying the issue tracker.
func WithTracker(ctx context.Context, t Tracker) context.Context {
	return context.WithValue(ctx, trackerKey, t)
}

// TrackerFromContext retrieves the tracker, if present.
func TrackerFromContext(ctx context.Context) (Tracker, bool) {
	t, ok := ctx.Value(trackerKey).(Tracker)
	return t, ok
}

// MustTrackerFromContext retrieves the tracker or panics. Nodes use this:
// a missing tracker is a wiring bug, not a runtime condition.
func MustTrackerFromContext(ctx context.Context) Tracker {
	t, ok := TrackerFromContext(ctx)
	if !ok {
		panic(fmt.Sprintf("tracker not found in context (key %q)", trackerKey))
	}
	return t
}

// WithHost returns a context carrying the code host.
func WithHost(ctx context.Context, h Host) context.Context {
	return context.WithValue(ctx, hostKey, h)
}

// HostFromContext retrieves the host, if present.
func HostFromContext(ctx context.Context) (Host, bool) {
	h, ok := ctx.Value(hostKey).(Host)
	return h, ok
}

// MustHostFromContext retrieves the host or panics.
func MustHostFromContext(ctx context.Context) Host {
	h, ok := HostFromContext(ctx)
	if !ok {
		panic(fmt.Sprintf("host not found in context (key %q)", hostKey))
	}
	return h
}

// WithLLMClient returns a context carrying the LLM client.
func WithLLMClient(ctx context.Context, client llm.Client) context.Context {
	return context.WithValue(ctx, llmKey, client)
}

// LLMFromContext extracts the LLM client, or nil.
func LLMFromContext(ctx context.Context) llm.Client {
	if client, ok := ctx.Value(llmKey).(llm.Client); ok {
		return client
	}
	return nil
}

// WithPromptLoader returns a context carrying the prompt loader.
func WithPromptLoader(ctx context.Context, l *PromptLoader) context.Context {
	return context.WithValue(ctx, promptsKey, l)
}

// PromptLoaderFromContext extracts the prompt loader, or nil.
func PromptLoaderFromContext(ctx context.Context) *PromptLoader {
	if l, ok := ctx.Value(promptsKey).(*PromptLoader); ok {
		return l
	}
	return nil
}

// WithRelevanceCache returns a context carrying the relevance cache.
func WithRelevanceCache(ctx context.Context, c RelevanceCache) context.Context {
	return context.WithValue(ctx, cacheKey, c)
}

// RelevanceCacheFromContext extracts the relevance cache, or nil. The cache
// is optional; nodes treat a nil cache as a permanent miss.
func RelevanceCacheFromContext(ctx context.Context) RelevanceCache {
	if c, ok := ctx.Value(cacheKey).(RelevanceCache); ok {
		return c
	}
	return nil
}

// Services bundles the collaborators a workflow run needs.
type Services struct {
	Tracker Tracker
	Host    Host
	LLM     llm.Client
	Prompts *PromptLoader
	Cache   RelevanceCache
}

// InjectAll attaches every non-nil service to the context.
func (s Services) InjectAll(ctx context.Context) context.Context {
	if s.Tracker != nil {
		ctx = WithTracker(ctx, s.Tracker)
	}
	if s.Host != nil {
		ctx = WithHost(ctx, s.Host)
	}
	if s.LLM != nil {
		ctx = WithLLMClient(ctx, s.LLM)
	}
	if s.Prompts != nil {
		ctx = WithPromptLoader(ctx, s.Prompts)
	}
	if s.Cache != nil {
		ctx = WithRelevanceCache(ctx, s.Cache)
	}
	return ctx
}
