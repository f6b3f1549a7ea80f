package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Back up the brain",
	}

	db := &cobra.Command{
		Use:   "db <path>",
		Short: "Write a full copy of the database to path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("export db: %w", err)
			}
			defer svc.Close()

			ok, err := svc.ExportDatabase(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("export db: %w", err)
			}
			if !ok {
				return fmt.Errorf("export db: %s was not written", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database exported to %s\n", args[0])
			return nil
		},
	}

	var outPath string
	brain := &cobra.Command{
		Use:   "brain",
		Short: "Print settings, profile and memories as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("export brain: %w", err)
			}
			defer svc.Close()

			doc, err := svc.ExportBrain(cmd.Context())
			if err != nil {
				return fmt.Errorf("export brain: %w", err)
			}
			if outPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(doc))
				return nil
			}
			if err := os.WriteFile(outPath, append(doc, '\n'), 0o600); err != nil {
				return fmt.Errorf("export brain: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Brain exported to %s\n", outPath)
			return nil
		},
	}
	brain.Flags().StringVarP(&outPath, "out", "o", "", "write to a file instead of stdout")

	cmd.AddCommand(db, brain)
	return cmd
}
