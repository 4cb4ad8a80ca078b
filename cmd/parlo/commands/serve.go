package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the voice-assistant HTTP backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		srv := buildServer(cfg)

		httpSrv := &http.Server{
			Addr:    cfg.Listen,
			Handler: srv.Router(),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			slog.Info("parlo: listening", "addr", cfg.Listen, "model", cfg.OpenAI.Model)
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		slog.Info("parlo: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
