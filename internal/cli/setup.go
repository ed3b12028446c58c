package cli

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/ticketflow/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a sample config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteSample(cfgPath); err != nil {
			return err
		}
		cmd.Printf("wrote sample config to %s\n", cfgPath)
		cmd.Println("edit it, then export TICKETFLOW_JIRA_TOKEN and TICKETFLOW_HOST_TOKEN")
		cmd.Println(`verify with "ticketflow check"`)
		return nil
	},
}
