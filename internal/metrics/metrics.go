// ABOUTME: Prometheus metrics and the /metrics + /healthz HTTP endpoint
// ABOUTME: Counts message traffic, session churn, and agent failures by kind

package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors the bridge updates while handling traffic
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived prometheus.Counter
	MessagesDeduped  prometheus.Counter
	RepliesSent      prometheus.Counter
	SessionsCreated  prometheus.Counter
	CommandsHandled  *prometheus.CounterVec
	AgentErrors      *prometheus.CounterVec
	AgentLatency     prometheus.Histogram
}

// New creates a Metrics with a private registry so tests never collide on
// the global default.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowbridge_messages_received_total",
			Help: "Inbound messages accepted for handling.",
		}),
		MessagesDeduped: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowbridge_messages_deduped_total",
			Help: "Inbound messages dropped as redeliveries.",
		}),
		RepliesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowbridge_replies_sent_total",
			Help: "Replies successfully produced for inbound messages.",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowbridge_sessions_created_total",
			Help: "New agent sessions minted for conversation threads.",
		}),
		CommandsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowbridge_commands_handled_total",
			Help: "Admin commands handled, by command name.",
		}, []string{"command"}),
		AgentErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowbridge_agent_errors_total",
			Help: "Agent invocation failures, by error kind.",
		}, []string{"kind"}),
		AgentLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowbridge_agent_request_seconds",
			Help:    "Agent invocation latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
	}
}

// Handler returns the HTTP handler serving the scrape endpoint at path
// (default /metrics) plus /healthz.
func (m *Metrics) Handler(path string) http.Handler {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

// Serve runs the metrics HTTP server on addr until the context is
// cancelled.
func (m *Metrics) Serve(ctx context.Context, addr, path string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(path),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger := slog.Default().With("component", "metrics")
	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr, "path", path)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
