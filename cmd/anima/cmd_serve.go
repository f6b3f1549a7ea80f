package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Anima/internal/anima/app"
	"github.com/bdobrica/Anima/internal/anima/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket API",
		Long: "Serve the chat, memory and maintenance API on a local address.\n" +
			"The server keeps running when the models fail to load; /health reports why.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.HTTPAddr = addr
			}
			ctx := cmd.Context()
			svc, err := c.openService(cmd, false)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer svc.Close()

			if err := svc.Init(ctx); err != nil {
				slog.Error("serve: models unavailable", "err", err, "hint", app.UserMessage(err))
			}

			srv := server.New(c.cfg.HTTPAddr, svc, server.WithLogger(slog.Default()))
			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer srv.Stop()

			if c.cfg.SleepInterval > 0 {
				sched := app.NewScheduler(svc, c.cfg.SleepInterval, slog.Default())
				go sched.Run(ctx)
				defer sched.Stop()
			}

			<-ctx.Done()
			slog.Info("serve: shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (env: ANIMA_HTTP_ADDR)")
	return cmd
}
