package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/metalsense/internal/api"
	"github.com/sells-group/metalsense/internal/monitoring"
	"github.com/sells-group/metalsense/internal/store"
	"github.com/sells-group/metalsense/internal/worker"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with background assessment",
	Long: "Serves the assessment API. Submitted samples are assessed by an in-process worker pool, " +
		"or by Temporal workers when worker.backend is temporal.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng, err := initEngine()
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)

		var d worker.Dispatcher
		switch cfg.Worker.Backend {
		case "temporal":
			c, err := worker.DialTemporal(temporalConfig())
			if err != nil {
				return err
			}
			defer c.Close()
			d = worker.NewTemporalDispatcher(c, cfg.Worker.Temporal.TaskQueue)
		default:
			ld := worker.NewLocalDispatcher(initAssessor(st, eng), cfg.Worker.Concurrency, cfg.Worker.QueueSize)
			g.Go(func() error { return ld.Run(gctx) })
			d = ld
		}

		if cfg.Monitoring.Enabled {
			checker := newChecker(st)
			g.Go(func() error {
				checker.Run(gctx)
				return nil
			})
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: api.NewServer(st, eng, d).Handler(api.Options{
				CORSOrigins: cfg.Server.CORSOrigins,
				RateLimit:   cfg.Server.RateLimit,
				RateBurst:   cfg.Server.RateBurst,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})

		g.Go(func() error {
			zap.L().Info("starting server",
				zap.Int("port", port),
				zap.String("backend", cfg.Worker.Backend),
				zap.String("store", cfg.Store.Driver),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		return g.Wait()
	},
}

func newChecker(st store.Store) *monitoring.Checker {
	return monitoring.NewChecker(
		monitoring.NewCollector(st),
		monitoring.NewAlerter(cfg.Monitoring),
		cfg.Monitoring,
	)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
