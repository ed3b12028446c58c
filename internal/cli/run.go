package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/ticketflow"
	"github.com/randalmurphal/ticketflow/config"
)

var (
	runMaxTickets int
	runTicketKey  string
	runDryRun     bool
	runNoReview   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process tickets from the sprint into pull requests",
	Long: `Run fetches eligible tickets, picks them one at a time, and drives each
through analysis, code generation, branch, commit, and pull request.

With --ticket only the named ticket is processed. With --dry-run the full
pipeline executes but nothing is written to Jira or the code host.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		services, err := buildServices(cfg)
		if err != nil {
			return err
		}
		rc, err := buildRunnerConfig(cfg)
		if err != nil {
			return err
		}
		if runMaxTickets > 0 {
			rc.MaxTickets = runMaxTickets
		}
		rc.TicketKey = runTicketKey
		rc.DryRun = runDryRun
		if runNoReview {
			rc.Params.Thresholds.RequireHumanReview = false
		}

		runner := ticketflow.NewRunner(rc, services)
		batch, err := runner.Run(cmd.Context())
		if err != nil {
			return err
		}

		return reportBatch(cmd, batch)
	},
}

// reportBatch prints the batch summary. Per-ticket failures are accounted
// in the report; only orchestrator-level errors make the command exit
// non-zero, so this always returns nil.
func reportBatch(cmd *cobra.Command, batch *ticketflow.BatchResult) error {
	printBatch(cmd, batch)
	if batch.Failed > 0 {
		cmd.Printf("%d of %d tickets failed, see errors above\n", batch.Failed, batch.Considered)
	}
	return nil
}

func init() {
	runCmd.Flags().IntVarP(&runMaxTickets, "max-tickets", "n", 0, "max tickets to process this run (default from config)")
	runCmd.Flags().StringVarP(&runTicketKey, "ticket", "t", "", "process exactly this ticket key")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "run the pipeline without writing to Jira or the code host")
	runCmd.Flags().BoolVar(&runNoReview, "no-review", false, "do not gate on size or keyword findings (security findings still gate)")
}

func printBatch(cmd *cobra.Command, batch *ticketflow.BatchResult) {
	cmd.Printf("run %s: %d considered, %d processed, %d skipped, %d failed\n",
		batch.RunID, batch.Considered, batch.Processed, batch.Skipped, batch.Failed)
	for _, res := range batch.Results {
		line := fmt.Sprintf("  %-12s %-14s", res.TicketKey, res.Outcome)
		if res.Repo != "" {
			line += " " + res.Repo
		}
		if res.PRURL != "" {
			line += " " + res.PRURL
		}
		cmd.Println(line)
	}
	if batch.Usage.Calls > 0 {
		cmd.Printf("tokens: %d in / %d out across %d calls\n",
			batch.Usage.InputTokens, batch.Usage.OutputTokens, batch.Usage.Calls)
	}
}
