package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/nostrhub/nostrhub/internal/cmd/client"
	serverrun "github.com/nostrhub/nostrhub/internal/cmd/server"
	tenantcmd "github.com/nostrhub/nostrhub/internal/cmd/tenant"
	cfgpkg "github.com/nostrhub/nostrhub/internal/config"
	logpkg "github.com/nostrhub/nostrhub/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	level := os.Getenv("NOSTRHUB_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "nostrhubd",
		Short: "nostrhub relay daemon",
		Long:  "nostrhubd is a single-binary, multi-tenant Nostr relay. This CLI manages the server and basic tenant operations.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the relay and control-plane listeners",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			relayAddr, _ := cmd.Flags().GetString("relay-addr")
			controlAddr, _ := cmd.Flags().GetString("control-addr")
			configPath, _ := cmd.Flags().GetString("config")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			if logLevel != "" {
				_ = os.Setenv("NOSTRHUB_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("NOSTRHUB_LOG_FORMAT", logFormat)
			}

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.FromEnv(&cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:     dataDir,
				RelayAddr:   relayAddr,
				ControlAddr: controlAddr,
				Config:      cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("relay-addr", ":7777", "Websocket/NIP-11 listen address")
	serverStartCmd.Flags().String("control-addr", ":7778", "Control-plane (healthz/tenant stats) listen address")
	serverStartCmd.Flags().String("config", "", "Path to a JSON or YAML config file")
	serverStartCmd.Flags().String("log-level", os.Getenv("NOSTRHUB_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("NOSTRHUB_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(tenantcmd.NewRoot())
	rootCmd.AddCommand(clientcmd.NewRoot())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
