package queue

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/beanstalk-bridge/internal/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reservedEntries(t *testing.T, tube *fakeTube, cfg Config) ([]*entry.Entry, *fakeSession) {
	t.Helper()

	sess, err := tube.dialer()(context.Background(), cfg)
	require.NoError(t, err)

	entries, err := NewReserver(cfg, discardLogger(), nil).Reserve(context.Background(), sess)
	require.NoError(t, err)

	return entries, sess.(*fakeSession)
}

func TestResolver_Resolve(t *testing.T) {
	tube := newFakeTube(`{"title":"a"}`, `{"title":"b"}`, `{"title":"c"}`)
	cfg := testConfig(30)
	entries, sess := reservedEntries(t, tube, cfg)
	require.Len(t, entries, 3)

	local := entry.New()
	local.Set("title", "not from the queue")

	err := NewResolver(cfg, discardLogger(), nil).Resolve(sess, Verdicts{
		Accepted:  []*entry.Entry{entries[0], local},
		Rejected:  []*entry.Entry{entries[1]},
		Undecided: []*entry.Entry{entries[2]},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"peek 1", "delete 1",
		"peek 2", "delete 2",
		"peek 3", "release 3 1h0m0s",
	}, sess.calls)

	assert.False(t, tube.exists(1))
	assert.False(t, tube.exists(2))
	assert.True(t, tube.exists(3))
	assert.Equal(t, time.Hour, tube.delays[3])
	assert.Equal(t, []uint64{3}, tube.ready)
}

func TestResolver_NoJobIDsNoCalls(t *testing.T) {
	tube := newFakeTube()
	sess := &fakeSession{tube: tube}

	plain := entry.New()
	plain.Set("title", "plain")

	err := NewResolver(testConfig(30), discardLogger(), nil).Resolve(sess, Verdicts{
		Accepted:  []*entry.Entry{plain},
		Rejected:  []*entry.Entry{plain},
		Undecided: []*entry.Entry{plain},
	})

	require.NoError(t, err)
	assert.Empty(t, sess.calls)
}

func TestResolver_JobGoneIsSkipped(t *testing.T) {
	tube := newFakeTube(`{"title":"a"}`, `{"title":"b"}`)
	cfg := testConfig(30)
	entries, sess := reservedEntries(t, tube, cfg)
	require.Len(t, entries, 2)

	// another consumer got rid of job 1 after its reservation expired
	delete(tube.bodies, 1)
	delete(tube.reserved, 1)

	var logs bytes.Buffer
	err := NewResolver(cfg, bufferLogger(&logs), nil).Resolve(sess, Verdicts{
		Accepted:  []*entry.Entry{entries[0]},
		Undecided: []*entry.Entry{entries[1]},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"peek 1", "peek 2", "release 2 1h0m0s"}, sess.calls)
	// same level the reserver uses for a job lost mid-batch
	assert.Contains(t, logs.String(), `"level":"WARN","msg":"Job has gone away"`)
	assert.NotContains(t, logs.String(), `"level":"ERROR"`)
}

func TestResolver_ReleaseNotOwned(t *testing.T) {
	tube := newFakeTube(`{"title":"a"}`)
	cfg := testConfig(30)
	entries, owner := reservedEntries(t, tube, cfg)
	require.Len(t, entries, 1)

	other := &fakeSession{tube: tube}
	err := NewResolver(cfg, discardLogger(), nil).Resolve(other, Verdicts{
		Undecided: entries,
	})

	require.NoError(t, err)
	assert.Equal(t, owner, tube.reserved[1])
}

func TestResolver_OtherErrorsAreJoined(t *testing.T) {
	tube := newFakeTube(`{"title":"a"}`, `{"title":"b"}`, `{"title":"c"}`)
	cfg := testConfig(30)
	entries, sess := reservedEntries(t, tube, cfg)
	require.Len(t, entries, 3)

	boom := errors.New("server out of memory")
	tube.deleteErr[1] = boom

	err := NewResolver(cfg, discardLogger(), nil).Resolve(sess, Verdicts{
		Accepted: entries,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to delete job 1")
	// the failure did not stop the rest of the batch
	assert.False(t, tube.exists(2))
	assert.False(t, tube.exists(3))
}
