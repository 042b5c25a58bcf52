// Package main provides the CLI entry point for the Voice Live assistant
// backend.
//
// Start the server:
//
//	voicelive serve --config voicelive.yaml
//
// List the functions exposed to the model:
//
//	voicelive functions
//
// Configuration can also be provided via environment variables, most notably
// AZURE_VOICELIVE_ENDPOINT, AZURE_VOICELIVE_MODEL and AZURE_VOICELIVE_API_KEY.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/michalmar/azure-ai-voicelive/internal/config"
	"github.com/michalmar/azure-ai-voicelive/internal/functions"
	"github.com/michalmar/azure-ai-voicelive/internal/gateway"
	"github.com/michalmar/azure-ai-voicelive/internal/observability"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "voicelive",
		Short:        "Azure Voice Live assistant backend",
		Long:         "Bridges browser clients to the Azure Voice Live speech-to-speech service\nwith function calling, transcripts, and a mock session for offline development.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildFunctionsCmd(),
	)
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("validate config: %w", err)
			}

			logger := observability.NewLogger(cfg.Log)
			slog.SetDefault(logger)

			registry, err := functions.NewRegistry()
			if err != nil {
				return fmt.Errorf("function registry: %w", err)
			}

			srv, err := gateway.New(gateway.Options{
				Config:   cfg,
				Logger:   logger,
				Registry: registry,
				Version:  version,
			})
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("VOICELIVE_CONFIG"), "Path to configuration file (yaml or json5)")
	return cmd
}

func buildFunctionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the function tools exposed to the model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := functions.NewRegistry()
			if err != nil {
				return err
			}
			for _, def := range registry.Definitions() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", def.Name, def.Description)
			}
			return nil
		},
	}
}
