package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/ticketflow/config"
	"github.com/randalmurphal/ticketflow/jira"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate config and connectivity to Jira and the code host",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cmd.Printf("config ok (%s)\n", cfgPath)

		tracker, err := jira.NewTracker(cfg.Jira)
		if err != nil {
			return fmt.Errorf("jira: %w", err)
		}
		tickets, err := tracker.FetchOpenTickets(cmd.Context())
		if err != nil {
			return fmt.Errorf("jira: %w", err)
		}
		cmd.Printf("jira ok (%d eligible tickets)\n", len(tickets))

		host, err := buildHost(cfg.Host)
		if err != nil {
			return err
		}
		repos, err := host.ListRepos(cmd.Context(), cfg.Host.Org)
		if err != nil {
			return fmt.Errorf("%s: %w", cfg.Host.Kind, err)
		}
		cmd.Printf("%s ok (%d repositories in %s)\n", cfg.Host.Kind, len(repos), cfg.Host.Org)
		return nil
	},
}
