package jira

import (
	"context"
	"fmt"
	"strings"

	"github.com/randalmurphal/ticketflow"
)

// Tracker adapts Client to the pipeline's Tracker interface.
type Tracker struct {
	client *Client
	cfg    Config
}

// NewTracker creates a tracker backed by the Jira REST API.
func NewTracker(cfg Config, opts ...ClientOption) (*Tracker, error) {
	client, err := NewClient(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Tracker{client: client, cfg: cfg}, nil
}

// eligibleJQL builds the default query for automatable tickets: unassigned,
// unparked work in the active sprint.
func (t *Tracker) eligibleJQL() string {
	if t.cfg.JQL != "" {
		return t.cfg.JQL
	}
	clauses := []string{
		`sprint in openSprints()`,
		`status = "To Do"`,
		`assignee is EMPTY`,
		fmt.Sprintf(`(labels is EMPTY OR labels not in (%q))`, ticketflow.SkipLabel),
	}
	if t.cfg.Project != "" {
		clauses = append([]string{fmt.Sprintf("project = %q", t.cfg.Project)}, clauses...)
	}
	return strings.Join(clauses, " AND ") + " ORDER BY created ASC"
}

// FetchOpenTickets implements ticketflow.Tracker.
func (t *Tracker) FetchOpenTickets(ctx context.Context) ([]ticketflow.Ticket, error) {
	result, err := t.client.SearchIssues(ctx, t.eligibleJQL(), 50)
	if err != nil {
		return nil, fmt.Errorf("search eligible tickets: %w", err)
	}

	tickets := make([]ticketflow.Ticket, 0, len(result.Issues))
	for _, issue := range result.Issues {
		tickets = append(tickets, t.toTicket(issue))
	}
	return tickets, nil
}

// TransitionTicket implements ticketflow.Tracker.
func (t *Tracker) TransitionTicket(ctx context.Context, key, status string) error {
	return t.client.TransitionIssueByName(ctx, key, status)
}

// AddComment implements ticketflow.Tracker.
func (t *Tracker) AddComment(ctx context.Context, key, body string) error {
	return t.client.AddComment(ctx, key, body)
}

// AssignTicket implements ticketflow.Tracker.
func (t *Tracker) AssignTicket(ctx context.Context, key, accountID string) error {
	return t.client.AssignIssue(ctx, key, accountID)
}

// toTicket converts a Jira issue into the pipeline's ticket shape.
func (t *Tracker) toTicket(issue Issue) ticketflow.Ticket {
	ticket := ticketflow.Ticket{
		ID:          issue.ID,
		Key:         issue.Key,
		Summary:     issue.Fields.Summary,
		Description: FlattenDescription(issue.Fields.Description),
		Status:      issue.Fields.Status.Name,
		Labels:      issue.Fields.Labels,
		URL:         strings.TrimSuffix(t.cfg.URL, "/") + "/browse/" + issue.Key,
	}
	if issue.Fields.Priority != nil {
		ticket.Priority = issue.Fields.Priority.Name
	}
	if issue.Fields.Assignee != nil {
		ticket.Assignee = issue.Fields.Assignee.DisplayName
	}
	return ticket
}

// FlattenDescription extracts plain text from a description that may be a
// v2 string or a v3 ADF document.
func FlattenDescription(desc any) string {
	switch v := desc.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		var b strings.Builder
		flattenADF(v, &b)
		return strings.TrimSpace(b.String())
	}
	return fmt.Sprintf("%v", desc)
}

// flattenADF walks an Atlassian Document Format node collecting text.
func flattenADF(node map[string]any, b *strings.Builder) {
	if text, ok := node["text"].(string); ok {
		b.WriteString(text)
	}
	if nodeType, ok := node["type"].(string); ok {
		switch nodeType {
		case "paragraph", "heading", "listItem":
			defer b.WriteString("\n")
		case "hardBreak":
			b.WriteString("\n")
		}
	}
	content, ok := node["content"].([]any)
	if !ok {
		return
	}
	for _, child := range content {
		if childMap, ok := child.(map[string]any); ok {
			flattenADF(childMap, b)
		}
	}
}
