// Package metrics exports sync activity as Prometheus metrics. A Collector
// is a sync.Reporter; attach it to the engine and serve Handler.
//
// Metrics:
//   - ftpsync_commands_total{kind,result} - queued commands by outcome
//   - ftpsync_batches_total{result} - drained batches, "ok" or "failed"
//   - ftpsync_batch_duration_seconds - batch execution time
//   - ftpsync_tree_ops_total{op,result} - bulk pull/push/put runs
//   - ftpsync_files_total{direction} - files uploaded or downloaded
//   - ftpsync_bytes_total - bytes transferred
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tonimelisma/ftpsync/internal/sync"
)

const namespace = "ftpsync"

// Collector holds the metrics on a private registry, so several collectors
// (one per test) never clash on registration.
type Collector struct {
	registry *prometheus.Registry

	commands      *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
	treeOps       *prometheus.CounterVec
	files         *prometheus.CounterVec
	bytes         prometheus.Counter
}

var _ sync.Reporter = (*Collector)(nil)

// New creates a Collector with Go runtime and process collectors registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Queued commands executed, by kind and result.",
		}, []string{"kind", "result"}),
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Drained queue batches, by result.",
		}, []string{"result"}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of queue batch execution in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		treeOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tree_ops_total",
			Help:      "Bulk pull, push and put runs, by result.",
		}, []string{"op", "result"}),
		files: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files transferred, by direction.",
		}, []string{"direction"}),
		bytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes transferred.",
		}),
	}
}

// BatchDone records a drained batch.
func (c *Collector) BatchDone(report *sync.BatchReport) {
	for _, res := range report.Results {
		c.commands.WithLabelValues(res.Command.Kind.String(), string(res.Status)).Inc()

		if res.Command.Kind == sync.CommandPut && res.Status == sync.OpDone {
			c.files.WithLabelValues("upload").Inc()
		}
	}

	c.batches.WithLabelValues(result(report.Err)).Inc()
	c.batchDuration.Observe(report.Duration.Seconds())
	c.bytes.Add(float64(report.Bytes()))
}

// TreeDone records a bulk operation.
func (c *Collector) TreeDone(report *sync.TreeReport) {
	c.treeOps.WithLabelValues(string(report.Op), result(report.Err)).Inc()
	c.files.WithLabelValues("upload").Add(float64(report.Uploaded))
	c.files.WithLabelValues("download").Add(float64(report.Downloaded))
	c.bytes.Add(float64(report.Bytes))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "failed"
	}

	return "ok"
}
