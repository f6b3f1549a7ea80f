package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Anima/internal/anima/config"
)

// settingKeys are the per-user settings stored in the database.
var settingKeys = []string{config.KeyUserName, config.KeyLanguage, config.KeyTemperature, config.KeyCorePrompt}

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and change settings",
		Long: "Settings (" + fmt.Sprint(settingKeys) + ") live in the database.\n" +
			"`config show` prints the effective process configuration instead.",
	}

	get := &cobra.Command{
		Use:   "get [key]",
		Short: "Print one setting, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("config get: %w", err)
			}
			defer svc.Close()

			keys := settingKeys
			if len(args) == 1 {
				keys = args
			}
			out := cmd.OutOrStdout()
			for _, k := range keys {
				v, err := svc.Setting(cmd.Context(), k)
				if err != nil {
					return fmt.Errorf("config get: %w", err)
				}
				if len(args) == 1 {
					fmt.Fprintln(out, v)
				} else {
					fmt.Fprintf(out, "%s=%s\n", k, v)
				}
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("config set: %w", err)
			}
			defer svc.Close()
			if err := svc.SetSetting(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("config set: %w", err)
			}
			v, err := svc.Setting(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("config set: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", args[0], v)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := yaml.Marshal(c.cfg)
			if err != nil {
				return fmt.Errorf("config show: %w", err)
			}
			cmd.OutOrStdout().Write(data)
			return nil
		},
	}

	cmd.AddCommand(get, set, show)
	return cmd
}
