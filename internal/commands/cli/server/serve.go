// Package server provides server-related CLI commands.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andrei-cloud/emv_studio/internal/cli"
	"github.com/andrei-cloud/emv_studio/internal/config"
	"github.com/andrei-cloud/emv_studio/internal/httpapi"
	"github.com/andrei-cloud/emv_studio/internal/logging"
	"github.com/andrei-cloud/emv_studio/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the calculator server",
		Long: `Start the calculator server. The TCP listener answers JSON calculator requests
framed by anet. With --http, or http.addr in the configuration, the same registry
is also served as a JSON HTTP API.`,
		RunE: runServe,
	}

	// Add serve command specific flags that can override config.
	cmd.Flags().String("host", "localhost", "Server host")
	cmd.Flags().Int("port", 1600, "Server port")
	cmd.Flags().String("http", "", "HTTP API listen address, empty disables it")

	return cmd
}

// Flags bound to configuration keys.
var serveFlags = map[string]string{
	"host": "server.host",
	"port": "server.port",
	"http": "http.addr",
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Bind serve command flags to viper and decode again.
	v := config.GetViper()
	for flag, key := range serveFlags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	if err := config.Reload(); err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	cfg := config.Get()

	// Server logs go to stdout.
	logging.InitLogger(cfg.Log.Level, cfg.Log.Format == "human")

	registry, release, err := cli.LocalRegistry()
	if err != nil {
		return err
	}
	defer release()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv, err := server.NewServer(serverAddr, registry)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	errChan := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	var httpSrv *http.Server
	if cfg.HTTP.Addr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpapi.NewHandler(registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("address", cfg.HTTP.Addr).Msg("http api started")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("http api failed: %w", err)
			}
		}()
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stopChan)

	var runErr error
	select {
	case <-stopChan:
	case <-cmd.Context().Done():
	case runErr = <-errChan:
	}
	log.Info().Msg("shutting down server...")

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error during http api shutdown")
		}
	}
	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	return runErr
}
