package ticketflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubHost implements Host for GitHub organizations.
//
// All writes go through the Git data API (blobs, trees, refs) so the host
// never needs a local clone.
type GitHubHost struct {
	client *github.Client
}

// NewGitHubHost creates a GitHub host from a personal access token or
// GitHub App installation token.
func NewGitHubHost(token string) (*GitHubHost, error) {
	if token == "" {
		return nil, fmt.Errorf("GitHub token is required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &GitHubHost{client: github.NewClient(tc)}, nil
}

// NewGitHubHostWithClient wraps an existing client. Used by tests against
// a local httptest server.
func NewGitHubHostWithClient(client *github.Client) *GitHubHost {
	return &GitHubHost{client: client}
}

// ListRepos implements Host. Archived and forked repositories are skipped;
// automated changes target primary sources only.
func (h *GitHubHost) ListRepos(ctx context.Context, org string) ([]Repo, error) {
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var repos []Repo
	for {
		page, resp, err := h.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("list repos for %s: %w", org, err)
		}
		for _, gr := range page {
			if gr.GetArchived() || gr.GetFork() {
				continue
			}
			repos = append(repos, Repo{
				Owner:         org,
				Name:          gr.GetName(),
				Description:   gr.GetDescription(),
				DefaultBranch: gr.GetDefaultBranch(),
				Language:      gr.GetLanguage(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

// BranchExists implements Host.
func (h *GitHubHost) BranchExists(ctx context.Context, repo Repo, branch string) (bool, error) {
	_, resp, err := h.client.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("get ref %s: %w", branch, err)
	}
	return true, nil
}

// CreateBranch implements Host.
func (h *GitHubHost) CreateBranch(ctx context.Context, repo Repo, branch string) error {
	base, _, err := h.client.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+repo.DefaultBranch)
	if err != nil {
		return fmt.Errorf("get base ref %s: %w", repo.DefaultBranch, err)
	}

	_, resp, err := h.client.Git.CreateRef(ctx, repo.Owner, repo.Name, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: base.Object.SHA},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity &&
			strings.Contains(err.Error(), "already exists") {
			return ErrBranchExists
		}
		return fmt.Errorf("create branch %s: %w", branch, err)
	}
	return nil
}

// CommitChanges implements Host. Edits become one tree on top of the
// branch head and one commit moving the ref forward.
func (h *GitHubHost) CommitChanges(ctx context.Context, repo Repo, branch, message string, edits []FileEdit) (string, error) {
	ref, _, err := h.client.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("get branch ref %s: %w", branch, err)
	}
	parentSHA := ref.Object.GetSHA()

	parent, _, err := h.client.Git.GetCommit(ctx, repo.Owner, repo.Name, parentSHA)
	if err != nil {
		return "", fmt.Errorf("get parent commit %s: %w", parentSHA, err)
	}

	entries := make([]*github.TreeEntry, 0, len(edits))
	for _, e := range edits {
		entry := &github.TreeEntry{
			Path: github.String(e.Path),
			Mode: github.String("100644"),
			Type: github.String("blob"),
		}
		if e.Action == "delete" {
			// Nil SHA with nil content marks the path for deletion.
			entries = append(entries, entry)
			continue
		}
		entry.Content = github.String(e.Content)
		entries = append(entries, entry)
	}

	tree, _, err := h.client.Git.CreateTree(ctx, repo.Owner, repo.Name, parent.Tree.GetSHA(), entries)
	if err != nil {
		return "", fmt.Errorf("create tree: %w", err)
	}

	commit, _, err := h.client.Git.CreateCommit(ctx, repo.Owner, repo.Name, &github.Commit{
		Message: github.String(message),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: github.String(parentSHA)}},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}

	_, _, err = h.client.Git.UpdateRef(ctx, repo.Owner, repo.Name, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: commit.SHA},
	}, false)
	if err != nil {
		return "", fmt.Errorf("update ref %s: %w", branch, err)
	}
	return commit.GetSHA(), nil
}

// OpenPullRequest implements Host.
func (h *GitHubHost) OpenPullRequest(ctx context.Context, opts PROptions) (*PullRequest, error) {
	base := opts.Base
	if base == "" {
		base = opts.Repo.DefaultBranch
	}

	pr, resp, err := h.client.PullRequests.Create(ctx, opts.Repo.Owner, opts.Repo.Name, &github.NewPullRequest{
		Title: github.String(opts.Title),
		Body:  github.String(opts.Body),
		Base:  github.String(base),
		Head:  github.String(opts.Branch),
		Draft: github.Bool(opts.Draft),
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			if strings.Contains(err.Error(), "A pull request already exists") {
				return nil, ErrPRExists
			}
			if strings.Contains(err.Error(), "No commits between") {
				return nil, ErrNoChanges
			}
		}
		return nil, fmt.Errorf("create PR: %w", err)
	}

	if len(opts.Labels) > 0 {
		_, _, err = h.client.Issues.AddLabelsToIssue(ctx, opts.Repo.Owner, opts.Repo.Name, pr.GetNumber(), opts.Labels)
		if err != nil {
			// PR exists; label failure is cosmetic.
			slog.Warn("failed to add labels to PR", "error", err, "pr", pr.GetNumber(), "labels", opts.Labels)
		}
	}

	return &PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
	}, nil
}
