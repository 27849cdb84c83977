package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/job"
)

const namespace = "signalproof"

// Collector owns the process metrics. It satisfies proofs.Observer and
// job.Observer so it can be handed directly to the assembler and processor.
type Collector struct {
	registry *prometheus.Registry

	derivations   *prometheus.CounterVec
	proofs        *prometheus.CounterVec
	proofDuration prometheus.Histogram
	batches       *prometheus.CounterVec
	batchSize     prometheus.Histogram
	jobs          *prometheus.CounterVec
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry. Process and Go runtime
// collectors are included when withRuntime is set.
func New(withRuntime bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		derivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_derivations_total",
			Help:      "Signal slot derivations by scheme version and outcome.",
		}, []string{"scheme", "outcome"}),
		proofs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proofs_total",
			Help:      "Proof assemblies by outcome.",
		}, []string{"outcome"}),
		proofDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proof_duration_seconds",
			Help:      "Time spent assembling one proof, provider round trips included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proof_batches_total",
			Help:      "Same-block proof batches by outcome.",
		}, []string{"outcome"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proof_batch_size",
			Help:      "Number of targets per proof batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Proof job transitions after processing, by resulting status and error code.",
		}, []string{"status", "code"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"}),
	}
	c.registry.MustRegister(c.derivations, c.proofs, c.proofDuration, c.batches, c.batchSize, c.jobs, c.requests, c.latency)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// ObserveDerivation counts one slot derivation.
func (c *Collector) ObserveDerivation(scheme string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(xerrors.CodeOf(err))
	}
	c.derivations.WithLabelValues(scheme, outcome).Inc()
}

// ObserveProof implements proofs.Observer.
func (c *Collector) ObserveProof(outcome string, elapsed time.Duration) {
	c.proofs.WithLabelValues(outcome).Inc()
	c.proofDuration.Observe(elapsed.Seconds())
}

// ObserveBatch implements proofs.Observer.
func (c *Collector) ObserveBatch(outcome string, size int) {
	c.batches.WithLabelValues(outcome).Inc()
	c.batchSize.Observe(float64(size))
}

// ObserveJob implements job.Observer.
func (c *Collector) ObserveJob(status job.Status, code xerrors.Code) {
	c.jobs.WithLabelValues(string(status), string(code)).Inc()
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (c *Collector) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	c.requests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the metrics in Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
