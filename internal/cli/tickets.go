package cli

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/ticketflow/config"
	"github.com/randalmurphal/ticketflow/jira"
)

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "List tickets eligible for automation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		tracker, err := jira.NewTracker(cfg.Jira)
		if err != nil {
			return err
		}
		tickets, err := tracker.FetchOpenTickets(cmd.Context())
		if err != nil {
			return err
		}

		if len(tickets) == 0 {
			cmd.Println("no eligible tickets")
			return nil
		}
		for _, t := range tickets {
			cmd.Printf("%-12s %-10s %s\n", t.Key, t.Priority, t.Summary)
		}
		return nil
	},
}
