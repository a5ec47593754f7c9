package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridprobe/gridprobe/internal/api"
	"github.com/gridprobe/gridprobe/internal/config"
)

var (
	serveHost string
	servePort int
	serveCORS []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis HTTP server",
	Long: `Start the gridprobe HTTP server.

The server exposes a JSON API for submitting puzzle analyses, an SSE stream
per session, and result retrieval. Provider slot widths and endpoints reload
live when the config file changes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	serveCmd.Flags().StringSliceVar(&serveCORS, "cors-origin", nil, "allowed CORS origins")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}

	serverCfg := api.DefaultConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	if cfg.Server.ShutdownTimeout > 0 {
		serverCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	if serveHost != "" {
		serverCfg.Host = serveHost
	}
	if servePort != 0 {
		serverCfg.Port = servePort
	}
	if len(serveCORS) > 0 {
		serverCfg.CORSOrigins = serveCORS
	}

	server := api.New(serverCfg, logger,
		application.manager, application.registry, application.catalog, application.store)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Live reload of provider settings and slot widths.
	if cfgPath != "" {
		go func() {
			err := config.Watch(ctx, cfgPath, func(next *config.Config) {
				application.applyConfig(next, logger)
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("config watch disabled", "error", err)
			}
		}()
	}

	if err := server.Start(); err != nil {
		return err
	}
	logger.Info("gridprobe ready",
		"addr", server.Addr(), "providers", len(cfg.Providers), "puzzles_dir", cfg.Catalog.Dir)

	<-ctx.Done()
	stop()

	shutdownErr := server.Shutdown(context.Background())
	application.close(logger)
	return shutdownErr
}
