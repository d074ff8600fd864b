package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PDCollector counts placement-service traffic issued by the pd worker.
type PDCollector struct {
	requests        *prometheus.CounterVec
	heartbeatAction *prometheus.CounterVec
	validatePeer    *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
}

// NewPDCollector creates collectors registered on reg (default if nil).
func NewPDCollector(reg prometheus.Registerer, namespace string) *PDCollector {
	if namespace == "" {
		namespace = "nyxstore"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	builder := promauto.With(reg)
	return &PDCollector{
		requests: builder.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pd_request_total",
			Help:      "PD requests issued by the pd worker, by request type and status.",
		}, []string{"type", "status"}),
		heartbeatAction: builder.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pd_heartbeat_action_total",
			Help:      "Scheduling directives received in region heartbeat responses.",
		}, []string{"type"}),
		validatePeer: builder.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pd_validate_peer_total",
			Help:      "Outcomes of peer validation against PD metadata.",
		}, []string{"type"}),
		dropped: builder.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pd_command_dropped_total",
			Help:      "Commands dropped because the store inbound queue rejected them.",
		}, []string{"type"}),
		taskDuration: builder.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pd_task_duration_seconds",
			Help:      "Time spent handling one pd worker task.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"type"}),
	}
}

func (c *PDCollector) IncRequest(kind, status string) {
	c.requests.WithLabelValues(kind, status).Inc()
}

func (c *PDCollector) IncHeartbeatAction(action string) {
	c.heartbeatAction.WithLabelValues(action).Inc()
}

func (c *PDCollector) IncValidatePeer(result string) {
	c.validatePeer.WithLabelValues(result).Inc()
}

func (c *PDCollector) IncDropped(cmd string) {
	c.dropped.WithLabelValues(cmd).Inc()
}

func (c *PDCollector) ObserveTask(kind string, d time.Duration) {
	c.taskDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// StartServer serves Prometheus metrics on the provided address until the context is canceled.
func StartServer(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	if addr == "" {
		return fmt.Errorf("metrics address is empty")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return nil
}
