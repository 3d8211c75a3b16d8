package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/scan-service/internal/domain"
)

func record(id string, status domain.AttemptStatus, finished time.Time) *domain.AttemptRecord {
	return &domain.AttemptRecord{
		JobID:      id,
		Status:     status,
		Client:     domain.Client{Email: id + "@example.com"},
		FinishedAt: finished,
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now()

	require.NoError(t, store.RecordOutcome(ctx, record("a", domain.StatusDelivered, base)))
	require.NoError(t, store.RecordOutcome(ctx, record("b", domain.StatusParked, base.Add(time.Second))))
	require.NoError(t, store.RecordOutcome(ctx, record("c", domain.StatusDelivered, base.Add(2*time.Second))))

	t.Run("list newest first", func(t *testing.T) {
		recs, err := store.List(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "c", recs[0].JobID)
		assert.Equal(t, "a", recs[2].JobID)
	})

	t.Run("list by status with limit", func(t *testing.T) {
		recs, err := store.List(ctx, domain.StatusDelivered, 1)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "c", recs[0].JobID)
	})

	t.Run("pending ledger oldest first", func(t *testing.T) {
		recs, err := store.PendingLedger(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "a", recs[0].JobID)

		require.NoError(t, store.MarkLedger(ctx, "a"))
		recs, err = store.PendingLedger(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "c", recs[0].JobID)
	})

	t.Run("transition", func(t *testing.T) {
		assert.ErrorIs(t, store.TransitionStatus(ctx, "a", domain.StatusParked, domain.StatusDelivered), ErrStatusMismatch)
		assert.ErrorIs(t, store.TransitionStatus(ctx, "zz", domain.StatusParked, domain.StatusDelivered), domain.ErrJobNotFound)
		require.NoError(t, store.TransitionStatus(ctx, "b", domain.StatusParked, domain.StatusDelivered))

		rec, err := store.Get(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDelivered, rec.Status)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		rec, err := store.Get(ctx, "c")
		require.NoError(t, err)
		rec.Status = domain.StatusDropped

		again, err := store.Get(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDelivered, again.Status)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
		assert.ErrorIs(t, store.MarkLedger(ctx, "nope"), domain.ErrJobNotFound)
	})
}

func TestMemoryStore_EvictsSettledRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStoreWithCapacity(2)
	base := time.Now()

	marked := func(id string, finished time.Time) *domain.AttemptRecord {
		rec := record(id, domain.StatusDelivered, finished)
		rec.LedgerMarked = true
		return rec
	}

	steps := []struct {
		rec  *domain.AttemptRecord
		want []string
	}{
		{rec: record("parked", domain.StatusParked, base), want: []string{"parked"}},
		{rec: marked("old", base.Add(time.Second)), want: []string{"old", "parked"}},
		{rec: record("dropped", domain.StatusDropped, base.Add(2*time.Second)), want: []string{"dropped", "parked"}},
		{rec: marked("new", base.Add(3*time.Second)), want: []string{"new", "parked"}},
		{rec: record("unmarked", domain.StatusDelivered, base.Add(4*time.Second)), want: []string{"parked", "unmarked"}},
		// nothing left that can go
		{rec: record("parked-2", domain.StatusParked, base.Add(5*time.Second)), want: []string{"parked", "parked-2", "unmarked"}},
	}

	for _, step := range steps {
		require.NoError(t, store.RecordOutcome(ctx, step.rec))

		recs, err := store.List(ctx, "", 0)
		require.NoError(t, err)
		var ids []string
		for _, rec := range recs {
			ids = append(ids, rec.JobID)
		}
		assert.ElementsMatch(t, step.want, ids, "after recording %s", step.rec.JobID)
	}
}
