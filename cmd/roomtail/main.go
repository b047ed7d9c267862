package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/capture-session-service/internal/tools/common"
	"github.com/sandeepkv93/capture-session-service/internal/tools/roomtail"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := roomtail.Options{}
	var envFile string
	cmd := &cobra.Command{
		Use:          "roomtail <room-id>",
		Short:        "Join a capture room as a guest and follow its lines",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := common.LoadEnvFile(envFile); err != nil {
				return err
			}
			if opts.Token == "" {
				opts.Token = os.Getenv("ROOMTAIL_TOKEN")
			}
			opts.RoomID = args[0]
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return roomtail.Run(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "http://localhost:8080", "service base URL")
	cmd.Flags().StringVar(&opts.Username, "username", "roomtail", "display name shown to the room")
	cmd.Flags().StringVar(&opts.Token, "token", "", "access token (defaults to $ROOMTAIL_TOKEN)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to merge")
	return cmd
}
