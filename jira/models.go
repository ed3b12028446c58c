package jira

// Issue is a Jira issue as returned by the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields holds the issue fields the pipeline cares about.
type IssueFields struct {
	Summary     string    `json:"summary"`
	Description any       `json:"description"` // string (v2) or ADF document (v3)
	Status      Status    `json:"status"`
	Priority    *Priority `json:"priority,omitempty"`
	Labels      []string  `json:"labels,omitempty"`
	Assignee    *User     `json:"assignee,omitempty"`
	IssueType   IssueType `json:"issuetype"`
}

// Status is an issue's workflow status.
type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Priority is an issue's priority level.
type Priority struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is a Jira account.
type User struct {
	AccountID   string `json:"accountId,omitempty"`
	Name        string `json:"name,omitempty"` // Server/DC
	DisplayName string `json:"displayName,omitempty"`
}

// IssueType is an issue's type (Bug, Task, Story).
type IssueType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchResponse is the result of a JQL search.
type SearchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Transition is an available workflow transition.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	To   Status `json:"to"`
}

// TransitionsResponse wraps the transitions list endpoint.
type TransitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}

// TransitionRequest executes a transition.
type TransitionRequest struct {
	Transition TransitionRef `json:"transition"`
}

// TransitionRef identifies a transition by ID.
type TransitionRef struct {
	ID string `json:"id"`
}

// Comment is an issue comment.
type Comment struct {
	ID   string `json:"id"`
	Body any    `json:"body"`
}

// AssignRequest sets an issue's assignee.
type AssignRequest struct {
	AccountID string `json:"accountId,omitempty"`
	Name      string `json:"name,omitempty"`
}
