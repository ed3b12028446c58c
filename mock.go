package ticketflow

import "context"

// MockTracker is a mock implementation of Tracker for testing.
type MockTracker struct {
	FetchOpenTicketsFunc func(ctx context.Context) ([]Ticket, error)
	TransitionTicketFunc func(ctx context.Context, key, status string) error
	AddCommentFunc       func(ctx context.Context, key, body string) error
	AssignTicketFunc     func(ctx context.Context, key, accountID string) error

	// Transitions records every (key, status) pair seen.
	Transitions [][2]string
	// Comments records every (key, body) pair seen.
	Comments [][2]string
}

// FetchOpenTickets implements Tracker.
func (m *MockTracker) FetchOpenTickets(ctx context.Context) ([]Ticket, error) {
	if m.FetchOpenTicketsFunc != nil {
		return m.FetchOpenTicketsFunc(ctx)
	}
	return nil, nil
}

// TransitionTicket implements Tracker.
func (m *MockTracker) TransitionTicket(ctx context.Context, key, status string) error {
	m.Transitions = append(m.Transitions, [2]string{key, status})
	if m.TransitionTicketFunc != nil {
		return m.TransitionTicketFunc(ctx, key, status)
	}
	return nil
}

// AddComment implements Tracker.
func (m *MockTracker) AddComment(ctx context.Context, key, body string) error {
	m.Comments = append(m.Comments, [2]string{key, body})
	if m.AddCommentFunc != nil {
		return m.AddCommentFunc(ctx, key, body)
	}
	return nil
}

// AssignTicket implements Tracker.
func (m *MockTracker) AssignTicket(ctx context.Context, key, accountID string) error {
	if m.AssignTicketFunc != nil {
		return m.AssignTicketFunc(ctx, key, accountID)
	}
	return nil
}

// MockHost is a mock implementation of Host for testing.
type MockHost struct {
	ListReposFunc       func(ctx context.Context, org string) ([]Repo, error)
	BranchExistsFunc    func(ctx context.Context, repo Repo, branch string) (bool, error)
	CreateBranchFunc    func(ctx context.Context, repo Repo, branch string) error
	CommitChangesFunc   func(ctx context.Context, repo Repo, branch, message string, edits []FileEdit) (string, error)
	OpenPullRequestFunc func(ctx context.Context, opts PROptions) (*PullRequest, error)

	// CreatedBranches records every branch created per repo full name.
	CreatedBranches []string
	// Commits records commit messages applied.
	Commits []string
	// OpenedPRs records PR options seen.
	OpenedPRs []PROptions
}

// ListRepos implements Host.
func (m *MockHost) ListRepos(ctx context.Context, org string) ([]Repo, error) {
	if m.ListReposFunc != nil {
		return m.ListReposFunc(ctx, org)
	}
	return nil, nil
}

// BranchExists implements Host.
func (m *MockHost) BranchExists(ctx context.Context, repo Repo, branch string) (bool, error) {
	if m.BranchExistsFunc != nil {
		return m.BranchExistsFunc(ctx, repo, branch)
	}
	return false, nil
}

// CreateBranch implements Host.
func (m *MockHost) CreateBranch(ctx context.Context, repo Repo, branch string) error {
	m.CreatedBranches = append(m.CreatedBranches, repo.FullName()+":"+branch)
	if m.CreateBranchFunc != nil {
		return m.CreateBranchFunc(ctx, repo, branch)
	}
	return nil
}

// CommitChanges implements Host.
func (m *MockHost) CommitChanges(ctx context.Context, repo Repo, branch, message string, edits []FileEdit) (string, error) {
	m.Commits = append(m.Commits, message)
	if m.CommitChangesFunc != nil {
		return m.CommitChangesFunc(ctx, repo, branch, message, edits)
	}
	return "abc1234", nil
}

// OpenPullRequest implements Host.
func (m *MockHost) OpenPullRequest(ctx context.Context, opts PROptions) (*PullRequest, error) {
	m.OpenedPRs = append(m.OpenedPRs, opts)
	if m.OpenPullRequestFunc != nil {
		return m.OpenPullRequestFunc(ctx, opts)
	}
	return &PullRequest{Number: 1, URL: "https://example.com/" + opts.Repo.FullName() + "/pull/1"}, nil
}

// MockRelevanceCache is an in-memory RelevanceCache for testing.
type MockRelevanceCache struct {
	Entries map[string][]Repo
}

// Get implements RelevanceCache.
func (m *MockRelevanceCache) Get(ticketKey string) ([]Repo, bool) {
	repos, ok := m.Entries[ticketKey]
	return repos, ok
}

// Put implements RelevanceCache.
func (m *MockRelevanceCache) Put(ticketKey string, repos []Repo) error {
	if m.Entries == nil {
		m.Entries = make(map[string][]Repo)
	}
	m.Entries[ticketKey] = repos
	return nil
}
