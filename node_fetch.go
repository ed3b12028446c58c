package ticketflow

import (
	"log/slog"
	"strings"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
)

// SkipLabel marks tickets a human has parked; they are never automated.
const SkipLabel = "to-be-decided"

// FetchTicketsNode loads the pool of eligible tickets from the tracker.
//
// The tracker query already excludes parked tickets, but the label filter
// runs here too so a custom JQL override cannot reintroduce them.
//
// Prerequisites: none
// Updates: state.Tickets
func FetchTicketsNode(ctx flowgraph.Context, state WorkflowState) (WorkflowState, error) {
	tracker := MustTrackerFromContext(ctx)

	tickets, err := tracker.FetchOpenTickets(ctx)
	if err != nil {
		return state, err
	}

	// Filter out parked tickets and those already handled in this batch.
	excluded := make(map[string]bool, len(state.ExcludedKeys))
	for _, k := range state.ExcludedKeys {
		excluded[k] = true
	}
	eligible := tickets[:0:0]
	for _, t := range tickets {
		if !excluded[t.Key] && !hasLabel(t, SkipLabel) {
			eligible = append(eligible, t)
		}
	}

	slog.Info("fetched tickets",
		"run_id", state.RunID,
		"total", len(tickets),
		"eligible", len(eligible))

	return state.WithTickets(eligible), nil
}

func hasLabel(t Ticket, label string) bool {
	for _, l := range t.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}
