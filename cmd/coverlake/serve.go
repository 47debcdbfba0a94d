package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/coverlake/coverlake/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin HTTP server and optional scheduled pipeline runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, log)
		if err != nil {
			return err
		}
		defer a.close()

		handler := api.NewHandler(a.orch, a.registry, a.runRepo, a.wmRepo, a.rejRepo, a.curRepo, a.conn.Pool, log)

		corsHandler := cors.New(cors.Options{
			AllowedOrigins: a.cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		})

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/", corsHandler.Handler(handler))

		server := &http.Server{
			Addr:         a.cfg.Server.Addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		var scheduler *cron.Cron
		if schedule := a.cfg.Server.Schedule; schedule != "" {
			scheduler = cron.New()
			for _, dataset := range a.registry.Datasets() {
				dataset := dataset
				if _, err := scheduler.AddFunc(schedule, func() {
					if _, err := a.orch.Run(ctx, dataset); err != nil {
						log.Error("scheduled run failed", "dataset", dataset, "error", err)
					}
				}); err != nil {
					return err
				}
			}
			scheduler.Start()
			log.Info("scheduled pipeline runs enabled", "schedule", schedule)
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("admin server listening", "addr", a.cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			log.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		if scheduler != nil {
			<-scheduler.Stop().Done()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}
