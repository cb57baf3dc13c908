package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"conference-balancer/pkg/database"
	"conference-balancer/pkg/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the refresh and cleanup jobs on their schedules and expose /metrics",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db := mustInitDB(ctx)
		defer db.Close()

		poller := newPoller(db)
		sweeper := newSweeper(db)

		sched := scheduler.New(log)
		jobs := []struct {
			name string
			spec string
			job  scheduler.Job
		}{
			{"refresh-usage", cfg.Poll.Schedule, func(ctx context.Context) error {
				return refreshUsage(ctx, db, poller)
			}},
			{"cleanup-statistics", cfg.Cleanup.Schedule, func(ctx context.Context) error {
				_, err := sweeper.SweepStatistics(ctx)
				return err
			}},
			{"cleanup-attendance", cfg.Cleanup.Schedule, func(ctx context.Context) error {
				_, err := sweeper.SweepAttendance(ctx)
				return err
			}},
		}
		for _, j := range jobs {
			if err := sched.Add(j.name, j.spec, j.job); err != nil {
				log.Errorw("Error scheduling job", "job", j.name, "error", err)
				os.Exit(1)
			}
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return sched.Run(ctx)
		})
		if cfg.Metrics.ListenAddr != "" {
			srv := &http.Server{
				Addr:              cfg.Metrics.ListenAddr,
				Handler:           newRouter(db),
				ReadHeaderTimeout: 5 * time.Second,
			}
			g.Go(func() error {
				log.Infow("Listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}

		if err := g.Wait(); err != nil {
			log.Errorw("Serve stopped with error", "error", err)
			os.Exit(1)
		}
	},
}

func newRouter(db *database.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}
