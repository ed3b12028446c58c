package integrationtest

import (
	"context"
	"strings"
	"testing"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
	llm "github.com/randalmurphal/llmkit/claude"
	"github.com/randalmurphal/ticketflow"
)

// candidateRepos is the pool the mock host serves for the test org.
func candidateRepos() []ticketflow.Repo {
	return []ticketflow.Repo{
		{Owner: "acme", Name: "search-api", Description: "Search and pagination service", DefaultBranch: "main", Language: "Go"},
		{Owner: "acme", Name: "billing", Description: "Invoicing and payments", DefaultBranch: "main", Language: "Go"},
	}
}

// pipelineServices wires mock collaborators around a fixed ticket pool.
func pipelineServices(t *testing.T, tickets []ticketflow.Ticket, client llm.Client) (ticketflow.Services, *ticketflow.MockTracker, *ticketflow.MockHost) {
	t.Helper()

	tracker := &ticketflow.MockTracker{
		FetchOpenTicketsFunc: func(ctx context.Context) ([]ticketflow.Ticket, error) {
			return tickets, nil
		},
	}
	host := &ticketflow.MockHost{
		ListReposFunc: func(ctx context.Context, org string) ([]ticketflow.Repo, error) {
			return candidateRepos(), nil
		},
	}

	services := ticketflow.Services{
		Tracker: tracker,
		Host:    host,
		LLM:     client,
		Prompts: ticketflow.NewPromptLoader(t.TempDir()),
		Cache:   &ticketflow.MockRelevanceCache{},
	}
	return services, tracker, host
}

// setupContext builds the flowgraph.Context a pipeline node sees in production.
func setupContext(t *testing.T, services ticketflow.Services, params ticketflow.Params) flowgraph.Context {
	t.Helper()

	base := ticketflow.WithParams(context.Background(), params)
	base = services.InjectAll(base)
	if services.LLM != nil {
		return flowgraph.NewContext(base, flowgraph.WithLLM(services.LLM))
	}
	return flowgraph.NewContext(base)
}

func testParams() ticketflow.Params {
	p := ticketflow.DefaultParams()
	p.Org = "acme"
	return p
}

// mockResponses creates a MockClient with sequential responses.
func mockResponses(responses ...string) *llm.MockClient {
	return llm.NewMockClient("").WithResponses(responses...)
}

// relevanceOrGenerate answers whichever prompt the node sent, so multi-ticket
// batches do not depend on call ordering.
func relevanceOrGenerate(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "scoring how relevant") {
		return &llm.CompletionResponse{Content: relevanceResponse}, nil
	}
	return &llm.CompletionResponse{Content: generateResponse}, nil
}

// Canned LLM responses driving the two model calls a full run makes.
const (
	relevanceResponse = `{
		"scores": [
			{"name": "search-api", "relevance": 0.95, "reason": "owns the search endpoint"},
			{"name": "billing", "relevance": 0.1, "reason": "unrelated to the ticket"}
		]
	}`

	generateResponse = `{
		"summary": "Clamp page size to the configured maximum",
		"test_plan": "- Request page sizes above the limit and confirm clamping",
		"edits": [
			{"path": "internal/search/page.go", "action": "modify", "content": "package search\n"}
		]
	}`

	// An edit under an auth path trips the review heuristics.
	reviewGenerateResponse = `{
		"summary": "Tighten token validation",
		"test_plan": "- Exercise expired and malformed tokens",
		"edits": [
			{"path": "internal/auth/token.go", "action": "modify", "content": "package auth\n"}
		]
	}`

	// CI definitions are a forbidden path, so the gate rejects this outright.
	rejectGenerateResponse = `{
		"summary": "Adjust CI workflow",
		"edits": [
			{"path": ".github/workflows/ci.yml", "action": "modify", "content": "on: push\n"}
		]
	}`
)
