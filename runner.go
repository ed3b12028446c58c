package ticketflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/randalmurphal/flowgraph/pkg/flowgraph"

	"github.com/randalmurphal/ticketflow/runlog"
)

// ============================================================================
// Runner
// ============================================================================

// RunnerConfig controls a batch run.
type RunnerConfig struct {
	// Params are the per-run tuning knobs injected into node context.
	Params Params

	// Retry bounds transient-failure retries per node.
	Retry RetryPolicy

	// MaxTickets caps how many tickets one batch run processes.
	MaxTickets int

	// TicketKey, when set, processes exactly that ticket and nothing else.
	TicketKey string

	// DryRun runs the full pipeline without any tracker or host mutation.
	DryRun bool

	// Log receives per-ticket and batch records. Optional.
	Log *runlog.Writer
}

// DefaultRunnerConfig returns production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Params:     DefaultParams(),
		Retry:      DefaultRetryPolicy(),
		MaxTickets: 5,
	}
}

// Runner drives the ticket pipeline: one flowgraph execution per ticket,
// repeated until the batch cap or the eligible pool runs out.
type Runner struct {
	cfg      RunnerConfig
	services Services
}

// NewRunner creates a runner. Config is validated on Run, not here, so a
// runner can be built before credentials resolve.
func NewRunner(cfg RunnerConfig, services Services) *Runner {
	if cfg.MaxTickets < 1 {
		cfg.MaxTickets = 1
	}
	return &Runner{cfg: cfg, services: services}
}

// Run executes a batch and returns its accounting. The returned error is
// reserved for infrastructure failures (context cancellation, graph
// compilation); per-ticket failures land in the BatchResult instead.
func (r *Runner) Run(ctx context.Context) (*BatchResult, error) {
	if err := r.cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if r.services.Tracker == nil || r.services.Host == nil {
		return nil, fmt.Errorf("%w: tracker and host are required", ErrConfigInvalid)
	}

	batchID, err := nanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	batch := &BatchResult{
		RunID:     batchID,
		StartedAt: time.Now().UTC(),
	}

	slog.Info("batch started",
		"run_id", batchID,
		"max_tickets", r.cfg.MaxTickets,
		"dry_run", r.cfg.DryRun,
		"single_ticket", r.cfg.TicketKey)

	var processed []string
	for i := 0; i < r.cfg.MaxTickets; i++ {
		if ctx.Err() != nil {
			return batch, ctx.Err()
		}

		state := NewWorkflowState(fmt.Sprintf("%s-%d", batchID, i+1))
		state.DryRun = r.cfg.DryRun
		state.ForcedKey = r.cfg.TicketKey
		state.ExcludedKeys = processed

		result, err := r.runTicket(ctx, state)
		if err != nil {
			batch.FinishedAt = time.Now().UTC()
			return batch, err
		}

		// An empty pool ends the batch without counting as a skip.
		if result.Ticket == nil && result.Outcome == OutcomeSkipped {
			slog.Info("ticket pool exhausted", "run_id", batchID, "considered", batch.Considered)
			break
		}

		batch.Record(result)
		if result.Ticket != nil {
			processed = append(processed, result.Ticket.Key)
		}
		r.logRecord("ticket", batch.Results[len(batch.Results)-1])

		if r.cfg.TicketKey != "" {
			break
		}
	}

	batch.FinishedAt = time.Now().UTC()
	r.logRecord("batch", batch)

	slog.Info("batch finished",
		"run_id", batchID,
		"considered", batch.Considered,
		"processed", batch.Processed,
		"skipped", batch.Skipped,
		"failed", batch.Failed,
		"input_tokens", batch.Usage.InputTokens,
		"output_tokens", batch.Usage.OutputTokens,
		"duration", batch.FinishedAt.Sub(batch.StartedAt))
	return batch, nil
}

// runTicket wires and executes the full pipeline graph for one ticket
// selection. Every node gets recovery wrapping, and every edge is
// conditional so a terminal outcome short-circuits to END.
func (r *Runner) runTicket(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	nodes := map[string]NodeFunc{
		NodeFetchTickets:    FetchTicketsNode,
		NodeSelectTicket:    SelectTicketNode,
		NodeAnalyzeRepos:    AnalyzeRepositoriesNode,
		NodeGenerateCode:    GenerateCodeNode,
		NodeCreateBranch:    CreateBranchNode,
		NodeCommitChanges:   CommitChangesNode,
		NodeOpenPullRequest: OpenPullRequestNode,
		NodeUpdateTicket:    UpdateTicketStatusNode,
	}

	graph := flowgraph.NewGraph[WorkflowState]()
	for _, name := range pipelineOrder {
		wrapped := WithTiming(name, WithRecovery(name, nodes[name], r.cfg.Retry))
		graph = graph.AddNode(name, flowgraph.NodeFunc[WorkflowState](wrapped))
	}
	for _, name := range pipelineOrder {
		graph = graph.AddConditionalEdge(name, RouterFor(name))
	}
	graph = graph.SetEntry(NodeFetchTickets)

	compiled, err := graph.Compile()
	if err != nil {
		return state, fmt.Errorf("compile pipeline graph: %w", err)
	}

	base := WithParams(ctx, r.cfg.Params)
	base = r.services.InjectAll(base)

	var fctx flowgraph.Context
	if r.services.LLM != nil {
		fctx = flowgraph.NewContext(base, flowgraph.WithLLM(r.services.LLM))
	} else {
		fctx = flowgraph.NewContext(base)
	}

	return compiled.Run(fctx, state)
}

func (r *Runner) logRecord(kind string, record any) {
	if r.cfg.Log == nil {
		return
	}
	if err := r.cfg.Log.Append(kind, record); err != nil {
		slog.Warn("failed to write run log", "kind", kind, "error", err)
	}
}
