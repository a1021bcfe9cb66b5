package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/transport"
	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

// Query outcomes used as the "result" label.
const (
	ResultOK    = "ok"
	ResultNak   = "nak"
	ResultError = "error"
)

type Monitor struct {
	log      *logrus.Logger
	registry *prometheus.Registry
	mux      *http.ServeMux
	server   *http.Server

	Queries       *prometheus.CounterVec
	BytesSent     prometheus.Counter
	BytesReceived prometheus.Counter
	DecodeErrors  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	ReadingValue  *prometheus.GaugeVec

	GoroutineCount prometheus.Gauge
	MemoryUsage    prometheus.Gauge
}

func NewMonitor(log *logrus.Logger) *Monitor {
	m := &Monitor{
		log:      log,
		registry: prometheus.NewRegistry(),
		mux:      http.NewServeMux(),

		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inverter_queries_total",
			Help: "Commands sent to the inverter by outcome.",
		}, []string{"command", "result"}),

		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inverter_bytes_sent_total",
			Help: "Request bytes written to the link.",
		}),

		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inverter_bytes_received_total",
			Help: "Reply bytes read from the link.",
		}),

		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inverter_decode_errors_total",
			Help: "Failed queries by error kind.",
		}, []string{"kind"}),

		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inverter_query_duration_seconds",
			Help:    "Round trip time of one query including decode.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5},
		}, []string{"command"}),

		ReadingValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inverter_reading_value",
			Help: "Last decoded numeric value per field.",
		}, []string{"command", "label", "unit"}),

		GoroutineCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inverter_goroutines",
			Help: "Current number of goroutines.",
		}),

		MemoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inverter_memory_usage_bytes",
			Help: "Heap bytes allocated.",
		}),
	}

	m.registry.MustRegister(
		m.Queries,
		m.BytesSent,
		m.BytesReceived,
		m.DecodeErrors,
		m.QueryDuration,
		m.ReadingValue,
		m.GoroutineCount,
		m.MemoryUsage,
	)

	m.mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return m
}

func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// Handler serves /metrics, /health and anything added through Handle.
func (m *Monitor) Handler() http.Handler { return m.mux }

func (m *Monitor) Handle(pattern string, h http.Handler) {
	m.mux.Handle(pattern, h)
}

// InvalidCommand is the command label of input that resolves to nothing.
const InvalidCommand = "invalid"

// CommandLabel reduces a full command string such as "EY2024" to its
// registered name so parameters never become label values.
func CommandLabel(reg *protocol.Registry, input string) string {
	name, _, err := reg.Resolve(input)
	if err != nil {
		return InvalidCommand
	}
	return name
}

// ObserveQuery records the outcome of one facade query. command must be a
// registered name or InvalidCommand; see CommandLabel.
func (m *Monitor) ObserveQuery(command string, reading *protocol.Reading, err error, elapsed time.Duration) {
	m.QueryDuration.WithLabelValues(command).Observe(elapsed.Seconds())

	switch {
	case err != nil:
		m.Queries.WithLabelValues(command, ResultError).Inc()
		m.DecodeErrors.WithLabelValues(ErrorKind(err)).Inc()
		return
	case reading.Ack == protocol.AckFailed:
		m.Queries.WithLabelValues(command, ResultNak).Inc()
		return
	}
	m.Queries.WithLabelValues(command, ResultOK).Inc()

	for _, e := range reading.Entries {
		if v, ok := e.Value.Numeric(); ok {
			m.ReadingValue.WithLabelValues(command, e.Label, e.Unit).Set(v)
		}
	}
}

// ErrorKind extends protocol.ErrorKind with the transport failures.
func ErrorKind(err error) string {
	if kind := protocol.ErrorKind(err); kind != "other" {
		return kind
	}
	switch {
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, transport.ErrFrameTooLarge):
		return "frame_too_large"
	case errors.Is(err, transport.ErrClosed):
		return "closed"
	default:
		return "other"
	}
}

// StartMetricsServer serves Handler on port in the background.
func (m *Monitor) StartMetricsServer(port int) {
	addr := fmt.Sprintf(":%d", port)
	m.server = &http.Server{
		Addr:              addr,
		Handler:           m.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.log.Infof("metrics server listening on %s", addr)

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Errorf("metrics server error: %v", err)
		}
	}()
}

func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// StartRuntimeMonitor samples goroutine and heap gauges until ctx is done.
func (m *Monitor) StartRuntimeMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sampleRuntime()
			}
		}
	}()
}

func (m *Monitor) sampleRuntime() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	goroutines := runtime.NumGoroutine()

	m.GoroutineCount.Set(float64(goroutines))
	m.MemoryUsage.Set(float64(memStats.Alloc))

	m.log.Debugf("goroutines: %d, memory: %.2f MB", goroutines, float64(memStats.Alloc)/1024/1024)
}
