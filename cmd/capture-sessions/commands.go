package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/capture-session-service/internal/config"
	"github.com/sandeepkv93/capture-session-service/internal/database"
	"github.com/sandeepkv93/capture-session-service/internal/di"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
	"github.com/sandeepkv93/capture-session-service/internal/realtime"
	"github.com/sandeepkv93/capture-session-service/internal/repository"
	"github.com/sandeepkv93/capture-session-service/internal/security"
	"github.com/sandeepkv93/capture-session-service/internal/service"
	"github.com/sandeepkv93/capture-session-service/internal/tools/common"
	"github.com/sandeepkv93/capture-session-service/internal/tools/loadgen"

	"github.com/redis/go-redis/v9"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "capture-sessions",
		Short:         "Live capture rooms and persistent reading sessions",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newServeCommand(), newSweepCommand(), newTokenCommand(), newCacheFlushCommand(), newLoadgenCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := di.InitializeApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired rooms once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg, nil)
			db, err := database.Open(cfg, logger)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			sweeper := realtime.NewSweeper(repository.NewSessionRepository(db), cfg.RoomSweepInterval, logger)
			deleted, err := sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired rooms\n", deleted)
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an access token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return fmt.Errorf("user id must be a positive integer, got %q", args[0])
			}
			token, err := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret).
				SignAccessToken(uint(id), name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newCacheFlushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cache-flush",
		Short: "Forget remembered unknown content ids in the shared Redis miss cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.NegativeCacheBackend != "redis" {
				fmt.Fprintf(cmd.OutOrStdout(), "miss cache backend is %s, nothing to flush\n", cfg.NegativeCacheBackend)
				return nil
			}
			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
			defer client.Close()
			resolver := service.NewMediaResolver(nil, service.NewRedisMissCache(client, ""), cfg.MediaNegativeCacheTTL, nil, nil)
			if err := resolver.Forget(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "media miss cache flushed")
			return nil
		},
	}
}

func newLoadgenCommand() *cobra.Command {
	var (
		lg      loadgen.Config
		ci      bool
		timeout time.Duration
		envFile string
	)
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive synthetic rooms against a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := common.LoadEnvFile(envFile); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			res, err := loadgen.Run(ctx, lg)
			details := []string{
				fmt.Sprintf("rooms=%d joins=%d join_failures=%d", res.Rooms, res.Joins, res.JoinFailures),
				fmt.Sprintf("lines sent=%d delivered=%d p50=%s p95=%s", res.LinesSent, res.LinesDelivered, res.P50, res.P95),
			}
			if ci {
				common.PrintCIResult(err == nil, "loadgen", details, err)
				return err
			}
			for _, d := range details {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&lg.BaseURL, "base-url", "http://localhost:8080", "service base URL")
	cmd.Flags().StringVar(&lg.Profile, "profile", "relay", "relay or join")
	cmd.Flags().IntVar(&lg.Rooms, "rooms", 10, "rooms to create")
	cmd.Flags().IntVar(&lg.GuestsPerRoom, "guests", 3, "guests per room")
	cmd.Flags().IntVar(&lg.LinesPerRoom, "lines", 20, "lines sent by each host")
	cmd.Flags().DurationVar(&lg.LineInterval, "interval", 50*time.Millisecond, "delay between lines")
	cmd.Flags().IntVar(&lg.Concurrency, "concurrency", 4, "rooms driven in parallel")
	cmd.Flags().Int64Var(&lg.Seed, "seed", 0, "room id seed")
	cmd.Flags().BoolVar(&ci, "ci", false, "machine-readable output")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to merge")
	return cmd
}
