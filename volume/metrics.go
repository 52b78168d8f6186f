package volume

import (
	"time"

	"github.com/INLOpen/dedupstore/sys"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what a volume does. A single Metrics may be shared by
// several volumes.
type Metrics struct {
	BlocksCommitted     prometheus.Counter
	BlocksAborted       prometheus.Counter
	RecordsWritten      prometheus.Counter
	PayloadBytesWritten prometheus.Counter
	PayloadBytesRead    prometheus.Counter
	ManifestWrites      prometheus.Counter
	// FsyncLatency observes the time spent syncing files on commit.
	FsyncLatency prometheus.Histogram

	// Preallocation outcomes are process wide, they are read from sys.
	PreallocSucceeded   prometheus.CounterFunc
	PreallocFailed      prometheus.CounterFunc
	PreallocUnsupported prometheus.CounterFunc
}

// NewMetrics creates unregistered metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "volume",
			Name:      name,
			Help:      help,
		})
	}
	counterFunc := func(name, help string, fn func() uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "volume",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn()) })
	}
	return &Metrics{
		BlocksCommitted:     counter("blocks_committed_total", "Number of blocks committed."),
		BlocksAborted:       counter("blocks_aborted_total", "Number of blocks rolled back."),
		RecordsWritten:      counter("records_written_total", "Number of records in committed blocks."),
		PayloadBytesWritten: counter("payload_bytes_written_total", "Payload bytes appended to data files."),
		PayloadBytesRead:    counter("payload_bytes_read_total", "Payload bytes read from data files."),
		ManifestWrites:      counter("manifest_writes_total", "Number of manifest rewrites."),
		FsyncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "volume",
			Name:      "fsync_latency_seconds",
			Help:      "Time spent syncing volume files on commit.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		PreallocSucceeded: counterFunc("prealloc_succeeded_total",
			"Data file growths reserved with fallocate.", sys.PreallocSuccessCount),
		PreallocFailed: counterFunc("prealloc_failed_total",
			"Data file growths where fallocate failed.", sys.PreallocFailureCount),
		PreallocUnsupported: counterFunc("prealloc_unsupported_total",
			"Data file growths on filesystems without fallocate.", sys.PreallocUnsupportedCount),
	}
}

// Register adds every metric to r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.BlocksCommitted,
		m.BlocksAborted,
		m.RecordsWritten,
		m.PayloadBytesWritten,
		m.PayloadBytesRead,
		m.ManifestWrites,
		m.FsyncLatency,
		m.PreallocSucceeded,
		m.PreallocFailed,
		m.PreallocUnsupported,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// The helpers below make a nil *Metrics a no-op.

func (m *Metrics) committed(records uint64) {
	if m == nil {
		return
	}
	m.BlocksCommitted.Inc()
	m.RecordsWritten.Add(float64(records))
}

func (m *Metrics) aborted() {
	if m == nil {
		return
	}
	m.BlocksAborted.Inc()
}

func (m *Metrics) wrote(n int) {
	if m == nil {
		return
	}
	m.PayloadBytesWritten.Add(float64(n))
}

func (m *Metrics) read(n int) {
	if m == nil {
		return
	}
	m.PayloadBytesRead.Add(float64(n))
}

func (m *Metrics) manifestWritten() {
	if m == nil {
		return
	}
	m.ManifestWrites.Inc()
}

func (m *Metrics) fsynced(start time.Time) {
	if m == nil {
		return
	}
	m.FsyncLatency.Observe(time.Since(start).Seconds())
}
