package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knagata/memosync-server/internal/app"
	"github.com/knagata/memosync-server/internal/config"
	"github.com/knagata/memosync-server/internal/log"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "memosync-server",
		Short: "Real-time room synchronization server for shared memos",
	}

	var configPath string
	var addr string
	var verbose bool

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath, addr, verbose)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	serveCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	validateCmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate config without starting",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New("error")
			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}
			fmt.Printf("Configuration is valid (%s).\n", path)
			fmt.Printf("  Listen: %s\n", cfg.Addr)
			fmt.Printf("  Database: %s\n", cfg.DatabasePath)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and build info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("memosync-server %s (%s)\n", Version, GitCommit)
		},
	}

	rootCmd.AddCommand(serveCmd, validateCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(configPath, addr string, verbose bool) error {
	bootstrap := log.New("info")

	cfg, path, err := config.Load(bootstrap, configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	var fileOpts *log.FileOptions
	if cfg.LogFile != "" {
		fileOpts = &log.FileOptions{Path: cfg.LogFile, MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28}
	}
	logger := log.NewWithFile(cfg.LogLevel, fileOpts)
	logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting memosync server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return err
	}

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
