package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pocketcoach/converse/pkg/adapters/httpapi"
	"github.com/pocketcoach/converse/pkg/adapters/memory"
	redisadapter "github.com/pocketcoach/converse/pkg/adapters/redis"
	"github.com/pocketcoach/converse/pkg/content"
	"github.com/pocketcoach/converse/pkg/ports"
	"github.com/pocketcoach/converse/pkg/session"
	"github.com/pocketcoach/converse/pkg/settings"
	"github.com/pocketcoach/converse/pkg/tabular"
	"github.com/pocketcoach/converse/pkg/timing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve conversations over HTTP",
	Long:  `Starts the conversation server: scripts come from a local directory or the published content table, sessions live in memory or Redis.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().String("scripts", "", "Directory of local YAML conversation scripts")
	serveCmd.Flags().String("table-url", "", "SAS URL of the published content table")
	serveCmd.Flags().String("redis", "", "Redis address for shared sessions (host:port); empty keeps sessions in memory")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database")
	serveCmd.Flags().Duration("session-ttl", 30*24*time.Hour, "How long idle sessions are kept in Redis")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(cmd)

	scripts, policy, err := buildScriptSource(cmd, logger)
	if err != nil {
		return err
	}
	sessions, closeStore, err := buildSessionManager(cmd, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	api := httpapi.New(scripts, sessions,
		httpapi.WithLogger(logger),
		httpapi.WithPolicy(policy),
	)
	defer api.Shutdown()

	port, _ := cmd.Flags().GetString("port")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: api.Handler(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("conversation server listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown did not complete, closing", "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
		logger.Info("server stopped")
		return nil
	}
}

// buildScriptSource picks the conversation source: the published content
// table when --table-url is set, a local script directory otherwise. With a
// table, the Settings partition may override the timing policy.
func buildScriptSource(cmd *cobra.Command, logger *slog.Logger) (httpapi.ScriptSource, timing.Policy, error) {
	tableURL, _ := cmd.Flags().GetString("table-url")
	scriptsDir, _ := cmd.Flags().GetString("scripts")
	policy := timing.Default()

	switch {
	case tableURL != "" && scriptsDir != "":
		return nil, policy, fmt.Errorf("--table-url and --scripts are mutually exclusive")
	case tableURL != "":
		client, err := tabular.NewClient(tableURL, tabular.WithLogger(logger))
		if err != nil {
			return nil, policy, fmt.Errorf("connecting to content table: %w", err)
		}

		tuning := settings.New(client, settings.WithLogger(logger))
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := tuning.Load(ctx); err != nil {
			logger.Warn("loading settings failed, using default pacing", "err", err)
		} else {
			policy = policy.ApplySettings(tuning.Get)
		}

		return content.NewLoader(client, content.WithLogger(logger)), policy, nil
	case scriptsDir != "":
		return content.NewDir(scriptsDir), policy, nil
	default:
		return nil, policy, fmt.Errorf("either --scripts or --table-url is required")
	}
}

// buildSessionManager wires the snapshot store: Redis when --redis is set,
// process memory otherwise.
func buildSessionManager(cmd *cobra.Command, logger *slog.Logger) (*session.Manager, func(), error) {
	address, _ := cmd.Flags().GetString("redis")
	if address == "" {
		store := memory.NewStore()
		return session.NewManager(store, session.WithLogger(logger)), func() {}, nil
	}

	password, _ := cmd.Flags().GetString("redis-password")
	db, _ := cmd.Flags().GetInt("redis-db")
	ttl, _ := cmd.Flags().GetDuration("session-ttl")

	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	var store ports.SnapshotStorer = redisadapter.NewFromClient(client, redisadapter.WithTTL(ttl))
	locker := redisadapter.NewLocker(client, "converse:lock:")

	manager := session.NewManager(store,
		session.WithLocker(locker),
		session.WithLogger(logger),
	)
	closeStore := func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing redis client", "err", err)
		}
	}
	return manager, closeStore, nil
}
