package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Anima/internal/anima/app"
)

func newChatCmd(c *cli) *cobra.Command {
	var (
		temperature float64
		maxTokens   int
		greet       bool
	)
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to Anima",
		Long: "With a message, send it and print the reply. Without one, start an\n" +
			"interactive session reading lines from stdin until EOF or /quit.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.openService(cmd, true)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			st := newStyles(out)
			req := app.ChatRequest{Temperature: temperature, MaxTokens: maxTokens}

			if len(args) == 1 {
				req.Message = args[0]
				return streamReply(cmd, svc, req, st)
			}

			if greet {
				text, err := svc.ProactiveGreeting(cmd.Context(), "")
				if err != nil {
					fmt.Fprintln(out, st.Error.Render(app.UserMessage(err)))
				} else {
					fmt.Fprintln(out, st.Assistant.Render(text))
				}
			}
			return chatLoop(cmd, svc, req, st)
		},
	}
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature; 0 uses the stored setting")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "reply length limit in tokens")
	cmd.Flags().BoolVar(&greet, "greet", true, "open an interactive session with a greeting")
	return cmd
}

func chatLoop(cmd *cobra.Command, svc *app.Service, req app.ChatRequest, st styles) error {
	out := cmd.OutOrStdout()
	interactive := isTerminal(out)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for {
		if interactive {
			fmt.Fprint(out, st.Prompt.Render("you> "))
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}
		req.Message = line
		if err := streamReply(cmd, svc, req, st); err != nil {
			fmt.Fprintln(out, st.Error.Render(err.Error()))
		}
		if cmd.Context().Err() != nil {
			return nil
		}
	}
}

// streamReply prints the reply as it is generated and stores it.
func streamReply(cmd *cobra.Command, svc *app.Service, req app.ChatRequest, st styles) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	g, err := svc.SendMessageStream(ctx, req)
	if err != nil {
		return errors.New(app.UserMessage(err))
	}
	// Chunks are written raw: styling pads multi-line fragments.
	printed := false
	for chunk := range g.Chunks() {
		io.WriteString(out, chunk)
		printed = true
	}
	if err := g.Err(); err != nil {
		if printed {
			fmt.Fprintln(out)
		}
		return errors.New(app.UserMessage(err))
	}

	reply := g.Result()
	if reply == "" {
		reply = app.FallbackReply
		io.WriteString(out, st.Muted.Render(reply))
	}
	fmt.Fprintln(out)
	if _, err := svc.SaveAssistantMessage(ctx, reply); err != nil {
		fmt.Fprintln(out, st.Muted.Render("(reply not saved: "+app.UserMessage(err)+")"))
	}
	return nil
}

func newHistoryCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the conversation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer svc.Close()

			msgs, err := svc.ChatHistory(cmd.Context())
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if limit > 0 && len(msgs) > limit {
				msgs = msgs[len(msgs)-limit:]
			}
			out := cmd.OutOrStdout()
			st := newStyles(out)
			if len(msgs) == 0 {
				fmt.Fprintln(out, st.Muted.Render("No conversation yet."))
				return nil
			}
			for _, m := range msgs {
				stamp := st.Muted.Render(m.CreatedAt.Local().Format("2006-01-02 15:04"))
				fmt.Fprintf(out, "%s %s: %s\n", stamp, m.Role, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the last N turns")
	return cmd
}
