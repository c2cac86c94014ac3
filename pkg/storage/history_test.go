package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditkit/site-auditor/pkg/utils"
)

func setupHistory(t *testing.T) *SQLiteHistory {
	t.Helper()
	h, err := OpenHistory(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryRecordAndGet(t *testing.T) {
	h := setupHistory(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := AuditRecord{
		JobID:     "job-1",
		StartURL:  "https://shop.example.com/",
		BaseName:  "shop_example_com_20260301_100000",
		State:     "running",
		StartedAt: started,
	}
	require.NoError(t, h.Record(ctx, rec))

	got, err := h.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "running", got.State)
	assert.True(t, got.FinishedAt.IsZero())
	assert.Empty(t, got.Reports)
	assert.True(t, started.Equal(got.StartedAt))

	t.Run("upsert replaces row", func(t *testing.T) {
		rec.State = "completed"
		rec.FinishedAt = started.Add(90 * time.Second)
		rec.PagesCrawled = 10
		rec.Products = 3
		rec.Reports = []string{"shop_example_com_20260301_100000.txt", "shop_example_com_20260301_100000.csv"}
		require.NoError(t, h.Record(ctx, rec))

		got, err := h.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "completed", got.State)
		assert.Equal(t, 10, got.PagesCrawled)
		assert.Equal(t, 3, got.Products)
		assert.Equal(t, rec.Reports, got.Reports)
		assert.True(t, rec.FinishedAt.Equal(got.FinishedAt))

		all, err := h.List(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("missing job", func(t *testing.T) {
		_, err := h.Get(ctx, "nope")
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	t.Run("job id required", func(t *testing.T) {
		assert.ErrorIs(t, h.Record(ctx, AuditRecord{}), utils.ErrDatabase)
	})
}

func TestHistoryListNewestFirst(t *testing.T) {
	h := setupHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, h.Record(ctx, AuditRecord{
			JobID:     id,
			StartURL:  "https://example.com/",
			State:     "completed",
			StartedAt: base.Add(time.Duration(i) * 1500 * time.Millisecond),
		}))
	}

	all, err := h.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].JobID)
	assert.Equal(t, "a", all[2].JobID)

	limited, err := h.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestOpenHistoryOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	h, err := OpenHistory(path)
	require.NoError(t, err)
	require.NoError(t, h.Record(context.Background(), AuditRecord{JobID: "x", StartURL: "u", State: "failed", StartedAt: time.Now()}))
	require.NoError(t, h.Close())

	h2, err := OpenHistory(path)
	require.NoError(t, err)
	defer h2.Close()
	rec, err := h2.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "failed", rec.State)
}
