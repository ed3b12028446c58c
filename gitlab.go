package ticketflow

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/xanzy/go-gitlab"
)

// GitLabHost implements Host for GitLab groups, including self-hosted
// instances.
type GitLabHost struct {
	client *gitlab.Client
}

// NewGitLabHost creates a GitLab host. baseURL is empty for gitlab.com.
func NewGitLabHost(token, baseURL string) (*GitLabHost, error) {
	if token == "" {
		return nil, fmt.Errorf("GitLab token is required")
	}

	var client *gitlab.Client
	var err error
	if baseURL != "" {
		client, err = gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
	} else {
		client, err = gitlab.NewClient(token)
	}
	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}
	return &GitLabHost{client: client}, nil
}

// projectID returns the "namespace/project" path GitLab APIs accept.
func projectID(repo Repo) string {
	return repo.Owner + "/" + repo.Name
}

// ListRepos implements Host. The org maps to a GitLab group.
func (h *GitLabHost) ListRepos(ctx context.Context, org string) ([]Repo, error) {
	opts := &gitlab.ListGroupProjectsOptions{
		Archived:    gitlab.Ptr(false),
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}

	var repos []Repo
	for {
		page, resp, err := h.client.Groups.ListGroupProjects(org, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list projects for %s: %w", org, err)
		}
		for _, p := range page {
			repos = append(repos, Repo{
				Owner:         org,
				Name:          p.Path,
				Description:   p.Description,
				DefaultBranch: p.DefaultBranch,
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
func (h *GitLabHost) BranchExists(ctx context.Context, repo Repo, branch string) (bool, error) {
	_, resp, err := h.client.Branches.GetBranch(projectID(repo), branch, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("get branch %s: %w", branch, err)
	}
	return true, nil
}

// CreateBranch implements Host.
func (h *GitLabHost) CreateBranch(ctx context.Context, repo Repo, branch string) error {
	_, resp, err := h.client.Branches.CreateBranch(projectID(repo), &gitlab.CreateBranchOptions{
		Branch: gitlab.Ptr(branch),
		Ref:    gitlab.Ptr(repo.DefaultBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusBadRequest &&
			strings.Contains(err.Error(), "already exists") {
			return ErrBranchExists
		}
		return fmt.Errorf("create branch %s: %w", branch, err)
	}
	return nil
}

// CommitChanges implements Host. GitLab's commits API takes the whole
// changeset as actions in a single call.
func (h *GitLabHost) CommitChanges(ctx context.Context, repo Repo, branch, message string, edits []FileEdit) (string, error) {
	actions := make([]*gitlab.CommitActionOptions, 0, len(edits))
	for _, e := range edits {
		action := &gitlab.CommitActionOptions{
			FilePath: gitlab.Ptr(e.Path),
		}
		switch e.Action {
		case "create":
			action.Action = gitlab.Ptr(gitlab.FileCreate)
			action.Content = gitlab.Ptr(e.Content)
		case "modify":
			action.Action = gitlab.Ptr(gitlab.FileUpdate)
			action.Content = gitlab.Ptr(e.Content)
		case "delete":
			action.Action = gitlab.Ptr(gitlab.FileDelete)
		default:
			return "", fmt.Errorf("unknown edit action %q for %s", e.Action, e.Path)
		}
		actions = append(actions, action)
	}

	commit, _, err := h.client.Commits.CreateCommit(projectID(repo), &gitlab.CreateCommitOptions{
		Branch:        gitlab.Ptr(branch),
		CommitMessage: gitlab.Ptr(message),
		Actions:       actions,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}
	return commit.ID, nil
}

// OpenPullRequest implements Host. GitLab calls these merge requests;
// draft status is the "Draft: " title prefix.
func (h *GitLabHost) OpenPullRequest(ctx context.Context, opts PROptions) (*PullRequest, error) {
	target := opts.Base
	if target == "" {
		target = opts.Repo.DefaultBranch
	}

	title := opts.Title
	if opts.Draft {
		title = "Draft: " + title
	}

	mrOpts := &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(title),
		Description:  gitlab.Ptr(opts.Body),
		SourceBranch: gitlab.Ptr(opts.Branch),
		TargetBranch: gitlab.Ptr(target),
	}
	if len(opts.Labels) > 0 {
		mrOpts.Labels = gitlab.Ptr(gitlab.LabelOptions(opts.Labels))
	}

	mr, resp, err := h.client.MergeRequests.CreateMergeRequest(projectID(opts.Repo), mrOpts, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, ErrPRExists
		}
		return nil, fmt.Errorf("create merge request: %w", err)
	}
	return &PullRequest{
		Number: mr.IID,
		URL:    mr.WebURL,
	}, nil
}
