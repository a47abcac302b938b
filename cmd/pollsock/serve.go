package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/pollsock/errors"
	"github.com/vinayprograms/pollsock/pollserver"
	"github.com/vinayprograms/pollsock/shutdown"
)

// shutdownTimeout bounds graceful server shutdown.
const shutdownTimeout = 10 * time.Second

// maxGoroutines fails the liveness check when exceeded.
const maxGoroutines = 10000

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		addr string
		path string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an echo server",
		Long: `Serve runs a polling server that sends every message back to the
session it came from. Prometheus metrics are served on server.metrics_path,
liveness on /live and readiness on /ready.

Examples:
  pollsock serve
  pollsock serve --addr :9000 --path /echo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if path != "" {
				cfg.Server.Path = path
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := shutdown.SignalContext(cmd.Context())
			defer stop()

			srv := pollserver.New(cfg.PollServerConfig(log))
			srv.OnMessage(func(s *pollserver.Session, data string) {
				if err := s.Send(data); err != nil {
					log.Debug("echo_dropped", map[string]interface{}{"sid": s.ID(), "error": err.Error()})
				}
			})

			health := healthcheck.NewHandler()
			health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))
			health.AddReadinessCheck("accepting", func() error {
				if ctx.Err() != nil {
					return errors.New(errors.ErrCodeAborted, "shutting down")
				}
				return nil
			})

			r := chi.NewRouter()
			r.Use(middleware.RealIP)
			r.Get("/live", health.LiveEndpoint)
			r.Get("/ready", health.ReadyEndpoint)
			if cfg.Server.MetricsPath != "" {
				r.Handle(cfg.Server.MetricsPath, promhttp.Handler())
			}
			r.Mount("/", srv.Handler())

			httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: r}

			coord := shutdown.NewCoordinator(log)
			coord.Register("sessions", shutdown.PhaseSessions, func(context.Context) error {
				return srv.Close()
			})
			coord.Register("http", shutdown.PhaseListener, httpSrv.Shutdown)

			errCh := make(chan error, 1)
			go func() {
				log.Info("listening", map[string]interface{}{"addr": cfg.Server.Addr, "path": srv.Path()})
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err = <-errCh:
			case <-ctx.Done():
			}
			if shutErr := coord.ShutdownWithTimeout(shutdownTimeout); shutErr != nil && err == nil {
				err = shutErr
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config, :8080)")
	cmd.Flags().StringVar(&path, "path", "", "Mount path (default from config, /sock)")

	return cmd
}
