package ticketflow

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
	llm "github.com/randalmurphal/llmkit/claude"
)

// GenerateCodeNode asks the LLM for a changeset resolving the ticket and
// runs it through the quality gate.
//
// Prerequisites: state.Ticket, state.Repo
// Updates: state.Change, state.Metrics, state.Gate; state.Outcome=failed
// when the gate rejects the change
func GenerateCodeNode(ctx flowgraph.Context, state WorkflowState) (WorkflowState, error) {
	if err := state.Validate(RequireTicket, RequireRepo); err != nil {
		return state, err
	}
	client := LLMFromContext(ctx)
	if client == nil {
		return state, fmt.Errorf("llm.Client not found in context")
	}
	loader := PromptLoaderFromContext(ctx)
	if loader == nil {
		return state, fmt.Errorf("prompt loader not found in context")
	}
	params := ParamsFromContext(ctx)

	prompt, err := loader.Load("generate", map[string]any{
		"TicketKey":       state.Ticket.Key,
		"Summary":         state.Ticket.Summary,
		"Description":     state.Ticket.Description,
		"RepoFullName":    state.Repo.FullName(),
		"RepoDescription": state.Repo.Description,
		"Language":        state.Repo.Language,
		"MaxFiles":        params.Thresholds.MaxFilesChanged,
		"MaxLines":        params.Thresholds.MaxLinesChanged,
	})
	if err != nil {
		return state, err
	}

	result, err := client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return state, err
	}
	state.AddTokens(result.Usage.InputTokens, result.Usage.OutputTokens)

	change, err := parseGeneratedChange(result.Content)
	if err != nil {
		return state, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	metrics := MeasureChange(*state.Ticket, change)
	decision, reasons := EvaluateGate(params.Thresholds, change, metrics)
	state = state.WithChange(change, metrics)
	state.Gate = decision

	slog.Info("generated change",
		"run_id", state.RunID,
		"ticket", state.Ticket.Key,
		"files", metrics.FilesChanged,
		"lines", metrics.LinesChanged,
		"gate", decision,
		"reasons", reasons)

	if decision == GateReject {
		state.RecordError("generate_code", KindFatal, 1,
			fmt.Errorf("%w: %v", ErrChangeRejected, reasons))
		return state.WithOutcome(OutcomeFailed), nil
	}
	if decision == GateNeedsReview {
		state.Metrics.ReviewReasons = reasons
	}
	return state, nil
}

// parseGeneratedChange decodes the generation response and checks its shape.
func parseGeneratedChange(content string) (GeneratedChange, error) {
	var change GeneratedChange
	if err := json.Unmarshal([]byte(extractJSON(content)), &change); err != nil {
		return change, fmt.Errorf("parse response: %w", err)
	}
	if len(change.Edits) == 0 {
		return change, fmt.Errorf("response contains no edits")
	}
	for _, e := range change.Edits {
		if e.Path == "" {
			return change, fmt.Errorf("edit with empty path")
		}
		switch e.Action {
		case "create", "modify", "delete":
		default:
			return change, fmt.Errorf("edit %s has unknown action %q", e.Path, e.Action)
		}
		if e.Action != "delete" && e.Content == "" {
			return change, fmt.Errorf("edit %s has no content", e.Path)
		}
	}
	return change, nil
}
