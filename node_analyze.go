package ticketflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
	llm "github.com/randalmurphal/llmkit/claude"
)

// AnalyzeRepositoriesNode scores the organization's repositories against
// the selected ticket and keeps the best candidates.
//
// Results come from the relevance cache when fresh; otherwise an LLM call
// scores every repository, falling back to keyword matching when the LLM
// is unavailable or returns garbage. Candidates below the relevance
// threshold are dropped, the rest are capped at Params.MaxRepos.
//
// Prerequisites: state.Ticket
// Updates: state.Candidates, state.Repo, or state.Outcome=skipped when
// nothing is relevant
func AnalyzeRepositoriesNode(ctx flowgraph.Context, state WorkflowState) (WorkflowState, error) {
	if err := state.Validate(RequireTicket); err != nil {
		return state, err
	}
	params := ParamsFromContext(ctx)
	ticket := *state.Ticket

	if cache := RelevanceCacheFromContext(ctx); cache != nil {
		if repos, ok := cache.Get(ticket.Key); ok {
			slog.Info("relevance cache hit", "run_id", state.RunID, "ticket", ticket.Key, "candidates", len(repos))
			return pickCandidates(state, repos, params)
		}
	}

	host := MustHostFromContext(ctx)
	repos, err := host.ListRepos(ctx, params.Org)
	if err != nil {
		return state, err
	}
	if len(repos) == 0 {
		slog.Warn("organization has no repositories", "run_id", state.RunID, "org", params.Org)
		return state.WithOutcome(OutcomeSkipped), nil
	}

	scored, err := scoreWithLLM(ctx, &state, ticket, repos)
	if err != nil {
		// Scoring degradation is not fatal: keyword matching keeps the
		// pipeline moving without a model.
		slog.Warn("llm relevance scoring failed, using keyword fallback",
			"run_id", state.RunID, "ticket", ticket.Key, "error", err)
		scored = scoreByKeywords(ticket, repos)
	}

	if cache := RelevanceCacheFromContext(ctx); cache != nil {
		if err := cache.Put(ticket.Key, scored); err != nil {
			slog.Warn("failed to cache relevance scores", "ticket", ticket.Key, "error", err)
		}
	}
	return pickCandidates(state, scored, params)
}

// pickCandidates filters and orders scored repos, selecting the best one.
func pickCandidates(state WorkflowState, scored []Repo, params Params) (WorkflowState, error) {
	relevant := make([]Repo, 0, len(scored))
	for _, r := range scored {
		if r.Relevance >= params.RelevanceThreshold {
			relevant = append(relevant, r)
		}
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Relevance > relevant[j].Relevance
	})
	if len(relevant) > params.MaxRepos {
		relevant = relevant[:params.MaxRepos]
	}

	if len(relevant) == 0 {
		slog.Info("no relevant repository", "run_id", state.RunID, "ticket", state.Ticket.Key)
		state.RecordError("analyze_repositories", KindFatal, 1, ErrNoRelevantRepository)
		return state.WithOutcome(OutcomeSkipped), nil
	}

	slog.Info("selected repository",
		"run_id", state.RunID,
		"ticket", state.Ticket.Key,
		"repo", relevant[0].FullName(),
		"relevance", relevant[0].Relevance,
		"candidates", len(relevant))
	return state.WithCandidates(relevant).WithRepo(relevant[0]), nil
}

// relevanceResponse is the JSON shape the scoring prompt demands.
type relevanceResponse struct {
	Scores []struct {
		Name      string  `json:"name"`
		Relevance float64 `json:"relevance"`
		Reason    string  `json:"reason"`
	} `json:"scores"`
}

func scoreWithLLM(ctx flowgraph.Context, state *WorkflowState, ticket Ticket, repos []Repo) ([]Repo, error) {
	client := LLMFromContext(ctx)
	if client == nil {
		return nil, fmt.Errorf("llm.Client not found in context")
	}
	loader := PromptLoaderFromContext(ctx)
	if loader == nil {
		return nil, fmt.Errorf("prompt loader not found in context")
	}

	prompt, err := loader.Load("relevance", map[string]any{
		"TicketKey":   ticket.Key,
		"Summary":     ticket.Summary,
		"Description": ticket.Description,
		"Repos":       repos,
	})
	if err != nil {
		return nil, err
	}

	result, err := client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	state.AddTokens(result.Usage.InputTokens, result.Usage.OutputTokens)

	var resp relevanceResponse
	if err := json.Unmarshal([]byte(extractJSON(result.Content)), &resp); err != nil {
		return nil, fmt.Errorf("parse relevance response: %w", err)
	}

	byName := make(map[string]float64, len(resp.Scores))
	for _, s := range resp.Scores {
		byName[strings.ToLower(s.Name)] = clamp01(s.Relevance)
	}
	scored := make([]Repo, len(repos))
	for i, r := range repos {
		r.Relevance = byName[strings.ToLower(r.Name)]
		scored[i] = r
	}
	return scored, nil
}

// scoreByKeywords is the degraded scoring path: fraction of ticket words
// that appear in the repository's name, description, or language.
func scoreByKeywords(ticket Ticket, repos []Repo) []Repo {
	words := ticketKeywords(ticket)
	scored := make([]Repo, len(repos))
	for i, r := range repos {
		haystack := strings.ToLower(r.Name + " " + r.Description + " " + r.Language)
		matches := 0
		for _, w := range words {
			if strings.Contains(haystack, w) {
				matches++
			}
		}
		if len(words) > 0 {
			r.Relevance = clamp01(float64(matches) / float64(len(words)) * 2)
		}
		scored[i] = r
	}
	return scored
}

// ticketKeywords extracts meaningful words from a ticket's text.
func ticketKeywords(t Ticket) []string {
	text := strings.ToLower(t.Summary + " " + t.Description)
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	seen := make(map[string]bool)
	var words []string
	for _, f := range fields {
		if len(f) < 4 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		words = append(words, f)
	}
	return words
}

var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"when": true, "then": true, "should": true, "would": true, "could": true,
	"will": true, "must": true, "into": true, "been": true, "were": true,
	"they": true, "their": true, "there": true, "which": true, "while": true,
	"about": true, "after": true, "before": true, "because": true,
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// extractJSON strips markdown code fences so LLM responses parse cleanly.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
