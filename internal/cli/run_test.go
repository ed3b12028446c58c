package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/ticketflow"
)

func TestReportBatch_FailuresDoNotFailCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	batch := &ticketflow.BatchResult{
		RunID:      "run-1",
		Considered: 5,
		Processed:  3,
		Failed:     2,
		Results: []ticketflow.TicketResult{
			{TicketKey: "PROJ-1", Outcome: ticketflow.OutcomeCompleted},
			{TicketKey: "PROJ-2", Outcome: ticketflow.OutcomeFailed},
		},
	}

	if err := reportBatch(cmd, batch); err != nil {
		t.Fatalf("reportBatch returned %v, ticket failures must not fail the command", err)
	}
	if !strings.Contains(out.String(), "2 of 5 tickets failed") {
		t.Errorf("output missing failure summary:\n%s", out.String())
	}
}

func TestReportBatch_CleanRun(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	batch := &ticketflow.BatchResult{RunID: "run-2", Considered: 1, Processed: 1}

	if err := reportBatch(cmd, batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out.String(), "failed, see errors above") {
		t.Errorf("clean run printed a failure summary:\n%s", out.String())
	}
}
