package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pdxmph/imgdedup/pkg/api"
	"github.com/pdxmph/imgdedup/pkg/logger"
)

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}
			log := logger.Component("serve")

			a, err := buildApp(cfg, afero.NewOsFs(), cfg.Storage.UploadDir, cfg.Catalog.Enabled)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.catalog != nil {
				n, err := a.catalog.Count(cmd.Context())
				if err != nil {
					return fmt.Errorf("read catalog: %w", err)
				}
				log.Info().Str("path", a.catalog.Path()).Int("entries", n).Msg("catalog opened")
			}

			gin.SetMode(gin.ReleaseMode)
			maxUpload := int64(cfg.Server.MaxUploadMB) << 20
			server := api.NewServer(a.service, identityProvider(cfg), maxUpload, logger.Component("api"))

			httpServer := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           server.SetupRouter(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Handle graceful shutdown
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().
					Str("addr", cfg.Server.Addr).
					Str("upload_dir", cfg.Storage.UploadDir).
					Bool("catalog", cfg.Catalog.Enabled).
					Int64("max_pixels", cfg.Dedup.MaxPixels).
					Bool("auth", cfg.Auth.Enabled).
					Msg("server listening")
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
