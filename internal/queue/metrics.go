package queue

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "beanstalk_bridge"

// Job operations counted per tube
const (
	opReserved = "reserved"
	opDeleted  = "deleted"
	opReleased = "released"
	opPut      = "put"
)

// Failure kinds counted per tube
const (
	failDecode = "decode"
	failEncode = "encode"
	failGone   = "gone"
	failOther  = "other"
)

// Metrics exports queue activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	jobs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	batchSize *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "", "jobs_total"),
			Help: "Number of job operations issued against beanstalkd",
		}, []string{"tube", "op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "", "job_failures_total"),
			Help: "Number of per-job failures that were logged and skipped",
		}, []string{"tube", "kind"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prometheus.BuildFQName(namespace, "", "batch_size"),
			Help:    "Number of jobs handled by one reservation batch",
			Buckets: []float64{0, 1, 5, 10, 30, 60, 120, 250},
		}, []string{"tube"}),
	}

	if reg != nil {
		reg.MustRegister(m.jobs, m.failures, m.batchSize)
	}

	return m
}

func (m *Metrics) countJob(tube, op string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(tube, op).Inc()
}

func (m *Metrics) countFailure(tube, kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(tube, kind).Inc()
}

func (m *Metrics) observeBatch(tube string, size int) {
	if m == nil {
		return
	}
	m.batchSize.WithLabelValues(tube).Observe(float64(size))
}
