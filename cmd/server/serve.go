package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/go-esign/internal/db"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	var pollEvery time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.GetLogger("server")
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			gdb, err := db.Connect(ctx, c.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close(gdb)
			if err := db.Migrate(gdb, c.cfg); err != nil {
				return err
			}
			// permissions and profiles only; users come from the seed command
			if err := db.Seed(ctx, gdb, db.SeedOptions{}); err != nil {
				return err
			}
			app, err := NewApp(ctx, c.cfg, gdb)
			if err != nil {
				return err
			}
			defer app.Close()
			go app.RunPoller(ctx, pollEvery)

			srv := &http.Server{
				Addr:         ":" + c.cfg.Server.Port,
				Handler:      app.Handler,
				ReadTimeout:  c.cfg.Server.ReadTimeout,
				WriteTimeout: c.cfg.Server.WriteTimeout,
				IdleTimeout:  c.cfg.Server.IdleTimeout,
			}
			errc := make(chan error, 1)
			go func() {
				log.Info("server starting", "port", c.cfg.Server.Port, "dev", c.cfg.App.Dev)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			log.Info("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("shutdown failed", "error", err)
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&pollEvery, "poll-interval", 5*time.Minute, "Interval between signature status polls, 0 to disable")
	return cmd
}
