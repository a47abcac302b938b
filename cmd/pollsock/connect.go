package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/pollsock/errors"
	"github.com/vinayprograms/pollsock/logging"
	"github.com/vinayprograms/pollsock/metrics"
	"github.com/vinayprograms/pollsock/shutdown"
	"github.com/vinayprograms/pollsock/socket"
	"github.com/vinayprograms/pollsock/transport"
)

// drainTimeout bounds how long connect waits for queued lines after stdin ends.
const drainTimeout = 5 * time.Second

func connectCmd(flags *globalFlags) *cobra.Command {
	var (
		protocols   []string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "connect [url]",
		Short: "Connect to a server, send stdin lines and print messages",
		Long: `Connect opens a socket to url (or client.url from the config file).
Each line read from stdin is sent as one message and every message
received is printed on its own line. The socket closes when stdin ends
and the send queue has drained, or on SIGINT/SIGTERM.

Examples:
  pollsock connect ws://localhost:8080/sock
  echo hello | pollsock connect wss://chat.example.com/sock --metrics-addr :9100`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(flags)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Client.URL = args[0]
			}
			if cmd.Flags().Changed("protocol") {
				cfg.Client.Protocols = protocols
			}
			if cfg.Client.URL == "" {
				return errors.Syntax("no url given and client.url is not set")
			}

			ctx, stop := shutdown.SignalContext(cmd.Context())
			defer stop()

			coord := shutdown.NewCoordinator(log)

			var m *metrics.Collector
			if metricsAddr != "" {
				m = metrics.NewCollector("pollsock")
				srv, err := serveMetrics(metricsAddr, m, log)
				if err != nil {
					return err
				}
				coord.Register("metrics", shutdown.PhaseListener, srv.Shutdown)
			}

			req := transport.NewHTTPRequester(cfg.HTTPConfig(log))
			sock, err := socket.NewContext(ctx, cfg.Client.URL, cfg.Client.Protocols, req, cfg.SocketConfig(log, m))
			if err != nil {
				return err
			}
			coord.Register("socket", shutdown.PhaseSockets, func(context.Context) error {
				return sock.Close()
			})

			err = runConnect(ctx, sock, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if shutErr := coord.ShutdownWithTimeout(drainTimeout); shutErr != nil && err == nil {
				err = shutErr
			}
			return err
		},
	}

	cmd.Flags().StringSliceVarP(&protocols, "protocol", "p", nil, "Subprotocols to request")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

// runConnect pumps stdin into the socket until stdin ends or the socket
// closes. It returns an error if the socket closed uncleanly.
func runConnect(ctx context.Context, sock *socket.Socket, in io.Reader, out, errOut io.Writer) error {
	opened := make(chan struct{})
	var closeEv socket.CloseEvent

	sock.OnOpen(func() {
		fmt.Fprintf(errOut, "connected to %s\n", sock.URL())
		close(opened)
	})
	sock.OnMessage(func(ev socket.MessageEvent) {
		fmt.Fprintln(out, ev.Data)
	})
	sock.OnError(func(err error) {
		fmt.Fprintf(errOut, "error: %v\n", err)
	})
	sock.OnClose(func(ev socket.CloseEvent) {
		closeEv = ev
		fmt.Fprintf(errOut, "closed: code=%d clean=%t %s\n", ev.Code, ev.WasClean, ev.Reason)
	})

	select {
	case <-opened:
	case <-sock.Done():
		return closeError(closeEv)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-sock.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				drain(ctx, sock)
				sock.CloseWithStatus(socket.CloseNormal, "")
				<-sock.Done()
				return closeError(closeEv)
			}
			if _, err := sock.Send(line); err != nil {
				return err
			}
		case <-sock.Done():
			return closeError(closeEv)
		}
	}
}

// drain waits until every queued message has been delivered.
func drain(ctx context.Context, sock *socket.Socket) {
	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for sock.BufferedAmount() > 0 {
		select {
		case <-tick.C:
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func closeError(ev socket.CloseEvent) error {
	if ev.WasClean {
		return nil
	}
	return errors.Newf(errors.ErrCodeNetworkErr, "connection closed abnormally (code %d)", ev.Code)
}

// serveMetrics exposes m on addr under /metrics.
func serveMetrics(addr string, m *metrics.Collector, log *logging.Logger) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics_server", map[string]interface{}{"error": err.Error()})
		}
	}()
	return srv, nil
}
