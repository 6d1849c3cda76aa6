package queue

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.countJob("jobs", opReserved)
		m.countFailure("jobs", failDecode)
		m.observeBatch("jobs", 3)
	})
}

func TestMetrics_RunCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	tube := newFakeTube(`{"title":"a"}`, `broken`, `{"title":"c"}`)
	cfg := testConfig(30)
	in, err := NewInput(cfg, tube.dialer(), discardLogger(), metrics)
	require.NoError(t, err)

	entries, err := in.ProduceEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, in.ConsumeEntries(context.Background(), Verdicts{
		Accepted:  entries[:1],
		Undecided: entries[1:],
	}))

	out, err := NewOutput(cfg, tube.dialer(), discardLogger(), metrics)
	require.NoError(t, err)
	require.NoError(t, out.ConsumeEntries(context.Background(), Verdicts{Accepted: entries[:1]}))

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.jobs.WithLabelValues("jobs", opReserved)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.jobs.WithLabelValues("jobs", opDeleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.jobs.WithLabelValues("jobs", opReleased)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.jobs.WithLabelValues("jobs", opPut)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("jobs", failDecode)))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.batchSize))
}

func TestNewMetrics_WithoutRegistry(t *testing.T) {
	m := NewMetrics(nil)
	require.NotNil(t, m)
	m.countJob("jobs", opPut)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("jobs", opPut)))
}
