package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Anima/internal/anima/store"
)

const maxContentWidth = 60

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

func writeMemoriesTable(w io.Writer, mems []store.Memory, st styles) {
	if len(mems) == 0 {
		fmt.Fprintln(w, st.Muted.Render("No memories found."))
		return
	}
	fmt.Fprintln(w, st.Title.Render(fmt.Sprintf("%-6s %-9s %-16s %s", "ID", "TYPE", "WHEN", "CONTENT")))
	for _, m := range mems {
		fmt.Fprintf(w, "%-6d %-9s %-16s %s\n",
			m.MessageID, m.MemoryType, m.MemoryTime.Local().Format("2006-01-02 15:04"), truncate(m.Content, maxContentWidth))
	}
}

func newMemoriesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memories",
		Short: "Browse and forget memories",
	}

	var query string
	list := &cobra.Command{
		Use:   "list",
		Short: "List memories, optionally filtered by text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("memories list: %w", err)
			}
			defer svc.Close()

			mems, err := svc.SearchMemories(cmd.Context(), query)
			if err != nil {
				return fmt.Errorf("memories list: %w", err)
			}
			writeMemoriesTable(cmd.OutOrStdout(), mems, newStyles(cmd.OutOrStdout()))
			return nil
		},
	}
	list.Flags().StringVarP(&query, "query", "q", "", "only memories containing this text")

	forget := &cobra.Command{
		Use:   "forget <id> [id...]",
		Short: "Delete memories by message ID; the conversation keeps the turns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("memories forget: invalid id %q", arg)
				}
				ids = append(ids, id)
			}
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("memories forget: %w", err)
			}
			defer svc.Close()

			for _, id := range ids {
				if err := svc.DeleteMemory(cmd.Context(), id); err != nil {
					return fmt.Errorf("memories forget: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forgot memory %d\n", id)
			}
			return nil
		},
	}

	cmd.AddCommand(list, forget)
	return cmd
}
