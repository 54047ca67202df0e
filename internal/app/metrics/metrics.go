package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	core "github.com/r3e-network/vinylwatch/internal/app/core/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vinylwatch",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vinylwatch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vinylwatch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.56s
		},
		[]string{"method", "path"},
	)

	schedulerTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vinylwatch",
			Subsystem: "scheduler",
			Name:      "rules_total",
			Help:      "Total number of rule runs dispatched per tick, by outcome.",
		},
		[]string{"outcome"},
	)

	schedulerLag = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vinylwatch",
			Subsystem: "scheduler",
			Name:      "claim_lag_seconds",
			Help:      "Time between a rule's next_run_at and the tick that claimed it.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vinylwatch",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total outbound provider requests, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vinylwatch",
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound provider requests.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider"},
	)

	notificationDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vinylwatch",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Total notification delivery attempts, by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	importJobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vinylwatch",
			Subsystem: "importengine",
			Name:      "jobs_total",
			Help:      "Total Discogs import job executions, by outcome.",
		},
		[]string{"outcome"},
	)

	importJobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vinylwatch",
			Subsystem: "importengine",
			Name:      "job_duration_seconds",
			Help:      "Duration of Discogs import job executions.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	observationCollectors sync.Map
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		schedulerTicks,
		schedulerLag,
		providerRequests,
		providerRequestDuration,
		notificationDeliveries,
		importJobRuns,
		importJobDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// SchedulerHooks records per-tick rule-run outcomes and claim lag for the
// rule scheduler (§4.4.1).
type SchedulerHooks struct{}

// NewSchedulerHooks builds scheduler metrics hooks.
func NewSchedulerHooks() *SchedulerHooks { return &SchedulerHooks{} }

// ObserveTick records processed/failed rule counts for one tick.
func (*SchedulerHooks) ObserveTick(processed, failed int) {
	schedulerTicks.WithLabelValues("processed").Add(float64(processed))
	schedulerTicks.WithLabelValues("failed").Add(float64(failed))
}

// ObserveLag records the delay between a rule's next_run_at and its claim.
func (*SchedulerHooks) ObserveLag(lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	schedulerLag.Observe(lag.Seconds())
}

// RecordProviderRequest records one outbound provider HTTP attempt.
func RecordProviderRequest(providerName string, duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	providerRequests.WithLabelValues(providerName, outcome).Inc()
	providerRequestDuration.WithLabelValues(providerName).Observe(duration.Seconds())
}

// RecordNotificationDelivery records one notification delivery attempt.
func RecordNotificationDelivery(channel string, success bool) {
	outcome := "sent"
	if !success {
		outcome = "failed"
	}
	notificationDeliveries.WithLabelValues(channel, outcome).Inc()
}

// RecordImportJob records one completed import job execution.
func RecordImportJob(duration time.Duration, success bool) {
	outcome := "completed"
	if !success {
		outcome = "failed"
	}
	importJobRuns.WithLabelValues(outcome).Inc()
	importJobDuration.Observe(duration.Seconds())
}

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// ObservationHooks creates core observation hooks backed by Prometheus metrics.
func ObservationHooks(namespace, subsystem, name string) core.ObservationHooks {
	key := namespace + ":" + subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(namespace, subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func createObservationCollector(namespace, subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_in_flight",
			Help:      "Current operations in flight for " + subsystem,
		},
		[]string{"resource"},
	)
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_duration_seconds",
			Help:      "Duration of operations for " + subsystem,
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"resource", "status"},
	)
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	if id, ok := meta["rule_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["listing_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["job_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["notification_id"]; ok && id != "" {
		return id
	}
	return "unknown"
}

// DispatcherHooks wraps ObservationHooks for dispatcher instrumentation.
func DispatcherHooks(namespace, subsystem, name string) core.DispatchHooks {
	return ObservationHooks(namespace, subsystem, name)
}

// ImportJobHooks captures import-job dispatch attempts as observation hooks,
// for use alongside RecordImportJob's summary counters.
func ImportJobHooks() core.DispatchHooks {
	return DispatcherHooks("vinylwatch", "importengine", "jobs")
}

// NotificationDeliveryHooks captures delivery-worker dispatch attempts.
func NotificationDeliveryHooks() core.DispatchHooks {
	return DispatcherHooks("vinylwatch", "notify", "delivery")
}

// ProviderRequestHooks captures provider-client invocation attempts.
func ProviderRequestHooks() core.ObservationHooks {
	return ObservationHooks("vinylwatch", "provider", "invocations")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 {
		return "/"
	}
	if parts[0] != "users" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/users"
	}
	if len(parts) == 2 {
		return "/users/:user"
	}
	resource := parts[1]
	return "/users/" + resource
}
