package ticketflow

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
)

// NodeFunc is a pipeline node. The signature matches flowgraph's
// NodeFunc[WorkflowState].
type NodeFunc func(ctx flowgraph.Context, state WorkflowState) (WorkflowState, error)

// RetryPolicy bounds how a node's transient failures are retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries transient failures three times with
// exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Delay returns the backoff before the given attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// WithRecovery wraps a node so the graph only ever sees settled outcomes:
//
//   - transient errors are retried with backoff up to MaxAttempts, then
//     the run fails;
//   - conflict errors mean the end state already exists and become success;
//   - fatal errors fail the run immediately.
//
// Failure here means state.Outcome=failed with the error history recorded,
// not a graph error: the router then routes to END and the batch moves on
// to the next ticket.
func WithRecovery(name string, node NodeFunc, policy RetryPolicy) NodeFunc {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return func(ctx flowgraph.Context, state WorkflowState) (WorkflowState, error) {
		for attempt := 1; ; attempt++ {
			result, err := node(ctx, state)
			if err == nil {
				return result, nil
			}

			kind := Classify(err)
			result.RecordError(name, kind, attempt, err)

			switch kind {
			case KindConflict:
				// Desired end state already exists.
				slog.Info("node conflict treated as success",
					"run_id", state.RunID, "node", name, "error", err)
				return result, nil

			case KindTransient:
				if attempt < policy.MaxAttempts {
					delay := policy.Delay(attempt)
					slog.Warn("node failed, retrying",
						"run_id", state.RunID,
						"node", name,
						"attempt", attempt,
						"max_attempts", policy.MaxAttempts,
						"delay", delay,
						"error", err)
					select {
					case <-time.After(delay):
						state = result
						continue
					case <-ctx.Done():
						return result, ctx.Err()
					}
				}
				slog.Error("node exhausted retries",
					"run_id", state.RunID, "node", name, "attempts", attempt, "error", err)
				return result.WithOutcome(OutcomeFailed), nil

			default:
				slog.Error("node failed",
					"run_id", state.RunID, "node", name, "error", err)
				return result.WithOutcome(OutcomeFailed), nil
			}
		}
	}
}

// WithTiming wraps a node with duration logging.
func WithTiming(name string, node NodeFunc) NodeFunc {
	return func(ctx flowgraph.Context, state WorkflowState) (WorkflowState, error) {
		start := time.Now()
		result, err := node(ctx, state)
		slog.Debug("node finished",
			"run_id", state.RunID, "node", name, "duration", time.Since(start))
		return result, err
	}
}
