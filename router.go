package ticketflow

import (
	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
)

// Graph node names.
const (
	NodeFetchTickets    = "fetch_tickets"
	NodeSelectTicket    = "select_ticket"
	NodeAnalyzeRepos    = "analyze_repositories"
	NodeGenerateCode    = "generate_code"
	NodeCreateBranch    = "create_branch"
	NodeCommitChanges   = "commit_changes"
	NodeOpenPullRequest = "open_pull_request"
	NodeUpdateTicket    = "update_ticket_status"
)

// pipelineOrder is the happy path through the graph.
var pipelineOrder = []string{
	NodeFetchTickets,
	NodeSelectTicket,
	NodeAnalyzeRepos,
	NodeGenerateCode,
	NodeCreateBranch,
	NodeCommitChanges,
	NodeOpenPullRequest,
	NodeUpdateTicket,
}

// Route decides the successor of a node. A terminal outcome always wins:
// once set, no further node runs for the ticket.
func Route(after string, state WorkflowState) string {
	if state.Outcome.Terminal() {
		return flowgraph.END
	}
	for i, name := range pipelineOrder {
		if name == after {
			if i+1 < len(pipelineOrder) {
				return pipelineOrder[i+1]
			}
			return flowgraph.END
		}
	}
	return flowgraph.END
}

// RouterFor builds the conditional-edge function for a node.
func RouterFor(after string) func(flowgraph.Context, WorkflowState) string {
	return func(_ flowgraph.Context, state WorkflowState) string {
		return Route(after, state)
	}
}
