package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	published []Entry
	failOn    string
}

func (p *recordingPublisher) Publish(_ context.Context, e Entry) error {
	if e.AggregateID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, e)
	return nil
}

func appendEntries(t *testing.T, store *MemoryStore, aggregateIDs ...string) {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range aggregateIDs {
		e, err := NewEntry("household", id, EventDistributionRegistered, map[string]string{"token_number": id}, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, store.Append(context.Background(), e))
	}
}

func TestWorkerProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes in order and marks entries", func(t *testing.T) {
		store := NewMemory()
		appendEntries(t, store, "TK001", "TK002", "TK003")
		pub := &recordingPublisher{}
		m := NewMetrics(prometheus.NewRegistry())
		w := NewWorker(store, pub, WithBatchSize(2), WithMetrics(m))

		n, err := w.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		require.Len(t, pub.published, 2)
		assert.Equal(t, "TK001", pub.published[0].AggregateID)
		assert.Equal(t, "TK002", pub.published[1].AggregateID)

		n, err = w.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		pending, err := store.CountUnpublished(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
		assert.Equal(t, 3.0, testutil.ToFloat64(m.Published))
	})

	t.Run("stops at first failure and records it", func(t *testing.T) {
		store := NewMemory()
		appendEntries(t, store, "TK001", "TK002", "TK003")
		pub := &recordingPublisher{failOn: "TK002"}
		w := NewWorker(store, pub)

		n, err := w.ProcessBatch(ctx)
		require.Error(t, err)
		assert.Equal(t, 1, n)

		entries := store.Entries()
		assert.NotNil(t, entries[0].PublishedAt)
		assert.Nil(t, entries[1].PublishedAt)
		assert.Equal(t, 1, entries[1].Attempts)
		assert.Equal(t, "broker unavailable", entries[1].LastError)
		assert.Nil(t, entries[2].PublishedAt)
	})

	t.Run("empty outbox", func(t *testing.T) {
		w := NewWorker(NewMemory(), &recordingPublisher{})
		n, err := w.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	store := NewMemory()
	appendEntries(t, store, "TK001")
	pub := &recordingPublisher{}
	w := NewWorker(store, pub, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, _ := store.CountUnpublished(context.Background())
		return n == 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
