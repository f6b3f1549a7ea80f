package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Anima/internal/anima/app"
	"github.com/bdobrica/Anima/internal/anima/sleep"
)

func newSleepCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sleep",
		Short: "Consolidate raw memories into facts and the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.openService(cmd, true)
			if err != nil {
				return fmt.Errorf("sleep: %w", err)
			}
			defer svc.Close()

			res, err := svc.RunSleepCycle(cmd.Context())
			if err != nil {
				return fmt.Errorf("sleep: %s (%w)", app.UserMessage(err), err)
			}
			out := cmd.OutOrStdout()
			st := newStyles(out)
			if res.Status == sleep.StatusNoop {
				fmt.Fprintln(out, st.Muted.Render("Nothing to consolidate."))
				return nil
			}
			fmt.Fprintln(out, st.Success.Render("Sleep cycle complete."))
			fmt.Fprintf(out, "  cycle:    %s\n  schema:   %s\n  episodes: %d\n  insights: %d\n  traits:   %d\n",
				res.CycleID, res.Schema, res.EpisodesProcessed, res.InsightsGenerated, res.TraitsUpdated)
			return nil
		},
	}
}
