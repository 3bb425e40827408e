package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/falconlabs/falcon/pkg/agent"
	"github.com/falconlabs/falcon/pkg/api"
	"github.com/falconlabs/falcon/pkg/codex"
	"github.com/falconlabs/falcon/pkg/config"
	"github.com/falconlabs/falcon/pkg/events"
	"github.com/falconlabs/falcon/pkg/github"
	"github.com/falconlabs/falcon/pkg/ingest"
	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/metrics"
	"github.com/falconlabs/falcon/pkg/pipeline"
	"github.com/falconlabs/falcon/pkg/queue"
	"github.com/falconlabs/falcon/pkg/sandbox"
	"github.com/falconlabs/falcon/pkg/service"
	"github.com/falconlabs/falcon/pkg/shell"
	"github.com/falconlabs/falcon/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Falcon backend",
	Long: `Start the HTTP API, the job orchestrator, and the wiki pipeline.

Pending database migrations are applied on startup. The process shuts
down cleanly on SIGINT or SIGTERM: open requests drain, in-flight
generation jobs are requeued for the next start, and both stores
close.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to falcon.yaml (default: search working directory)")
	serveCmd.Flags().String("addr", "", "Listen address (overrides http_addr)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}

	logLevel := log.Level(cfg.LogLevel)
	if cfg.Debug {
		logLevel = log.DebugLevel
	}
	log.Init(log.Config{Level: logLevel, JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("main")

	if err := os.MkdirAll(cfg.WikiStorageRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create wiki storage root: %w", err)
	}

	metrics.SetVersion(cfg.AppVersion)

	// Stores apply their migrations on open.
	wikiStore, err := storage.OpenWikiStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open wiki store: %w", err)
	}
	defer wikiStore.Close()
	metrics.RegisterComponent("wiki_store", true, "")

	repoStore, err := storage.OpenRepoStore(cfg.RepoDatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open repo store: %w", err)
	}
	defer repoStore.Close()
	metrics.RegisterComponent("repo_store", true, "")

	bus := events.NewBus()
	defer bus.Close()

	// Wiki generation: codex runner -> pipeline -> orchestrator.
	runner := codex.NewRunner(cfg.CodexAPIKey, cfg.CodexTimeout())
	pipe := pipeline.New(wikiStore, bus, sandbox.NewController(cfg), github.NewClient(cfg.GitHubAPIToken), runner, cfg)

	orch := queue.New(wikiStore, bus, pipe, cfg)
	if err := orch.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	metrics.RegisterComponent("orchestrator", true, "")

	collector := metrics.NewCollector(wikiStore, bus)
	collector.Start()
	defer collector.Stop()

	// Chat and exploration services share one streaming client.
	streamer := agent.NewOpenAIStreamer(cfg.OpenAIAPIKey)
	wikis := service.NewWikiService(wikiStore, cfg)

	server := api.NewServer(api.Deps{
		Wikis:      wikis,
		Chat:       service.NewChatService(wikiStore, wikis, streamer, cfg.OpenAIModel),
		Ingestor:   ingest.NewIngestor(repoStore, cfg.MaxFileSize),
		Agent:      agent.NewLoop(streamer, shell.NewDispatcher(repoStore), cfg.OpenAIModel),
		Bus:        bus,
		WikiStore:  wikiStore,
		RepoStore:  repoStore,
		ActiveJobs: orch.ActiveJobs,
		AppName:    cfg.AppName,
		Version:    cfg.AppVersion,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.HTTPAddr)
	}()

	logger.Info().
		Str("version", Version).
		Str("addr", cfg.HTTPAddr).
		Msg("Falcon is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		orch.Stop()
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	orch.Stop()

	logger.Info().Msg("Shutdown complete")
	return nil
}
