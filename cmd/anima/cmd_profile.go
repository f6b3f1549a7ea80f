package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProfileCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the consolidated user profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("profile: %w", err)
			}
			defer svc.Close()

			traits, err := svc.ProfileTraits(cmd.Context())
			if err != nil {
				return fmt.Errorf("profile: %w", err)
			}
			out := cmd.OutOrStdout()
			st := newStyles(out)
			if len(traits) == 0 {
				fmt.Fprintln(out, st.Muted.Render("The profile is empty. Run `anima sleep` after a few conversations."))
				return nil
			}
			for _, t := range traits {
				fmt.Fprintf(out, "%s %s\n", st.Title.Render("["+t.Category+"]"), t.Content)
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <category> <content>",
		Short: "Add a trait by hand",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("profile add: %w", err)
			}
			defer svc.Close()
			if err := svc.AddProfileTrait(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("profile add: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Trait added.")
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every trait",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("profile clear: %w", err)
			}
			defer svc.Close()
			if err := svc.ClearProfile(cmd.Context()); err != nil {
				return fmt.Errorf("profile clear: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Profile cleared.")
			return nil
		},
	}

	cmd.AddCommand(add, clearCmd)
	return cmd
}
