package ticketflow

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
)

// SelectTicketNode picks one ticket from the fetched pool.
//
// Selection is uniformly random. Priority ordering was considered and
// rejected: the same high-priority ticket failing repeatedly would starve
// the rest of the sprint. If state.ForcedKey is set the named ticket is
// selected instead.
//
// Prerequisites: state.Tickets fetched (may be empty)
// Updates: state.Ticket, or state.Outcome=skipped when the pool is empty
func SelectTicketNode(ctx flowgraph.Context, state WorkflowState) (WorkflowState, error) {
	if state.ForcedKey != "" {
		for _, t := range state.Tickets {
			if t.Key == state.ForcedKey {
				slog.Info("selected ticket", "run_id", state.RunID, "key", t.Key, "forced", true)
				return state.WithTicket(t), nil
			}
		}
		state.RecordError("select_ticket", KindFatal, 1,
			fmt.Errorf("ticket %s not found among eligible tickets", state.ForcedKey))
		return state.WithOutcome(OutcomeFailed), nil
	}

	if len(state.Tickets) == 0 {
		slog.Info("no eligible tickets", "run_id", state.RunID)
		return state.WithOutcome(OutcomeSkipped), nil
	}

	t := state.Tickets[rand.IntN(len(state.Tickets))]
	slog.Info("selected ticket", "run_id", state.RunID, "key", t.Key, "pool", len(state.Tickets))
	return state.WithTicket(t), nil
}
