package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase all conversations, memories, the profile and settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("reset: this erases everything; pass --yes to confirm")
			}
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			defer svc.Close()

			if err := svc.FactoryReset(cmd.Context()); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), newStyles(cmd.OutOrStdout()).Success.Render("Anima has been reset."))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
