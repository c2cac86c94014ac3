package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditkit/site-auditor/pkg/models"
	"github.com/auditkit/site-auditor/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(context.Background(), t.TempDir(), "shop_example_com_20260101_120000", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh store has zero count", func(t *testing.T) {
		store := newTestStore(t)
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.DirExists(t, store.Path())
	})

	t.Run("reopening the same run wipes data", func(t *testing.T) {
		dir := t.TempDir()
		store1, err := NewBadgerStore(context.Background(), dir, "run", testLogger())
		require.NoError(t, err)
		_, err = store1.MarkPageVisited("https://example.com/page1")
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(context.Background(), dir, "run", testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		status, _, err := store2.CheckPageStatus("https://example.com/page1")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusNotFound, status)
	})
}

func TestMarkPageVisited(t *testing.T) {
	store := newTestStore(t)

	t.Run("new URL returns true", func(t *testing.T) {
		added, err := store.MarkPageVisited("https://example.com/page1")
		require.NoError(t, err)
		assert.True(t, added)
	})

	t.Run("duplicate returns false", func(t *testing.T) {
		added, err := store.MarkPageVisited("https://example.com/page1")
		require.NoError(t, err)
		assert.False(t, added)
	})

	t.Run("count tracks correctly", func(t *testing.T) {
		_, err := store.MarkPageVisited("https://example.com/page2")
		require.NoError(t, err)
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestMarkPageVisitedConcurrent(t *testing.T) {
	store := newTestStore(t)
	var added atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkPageVisited("https://example.com/same")
			assert.NoError(t, err)
			if ok {
				added.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), added.Load())
}

func TestCheckPageStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("not found", func(t *testing.T) {
		status, entry, err := store.CheckPageStatus("https://example.com/missing")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusNotFound, status)
		assert.Nil(t, entry)
	})

	t.Run("pending with empty value", func(t *testing.T) {
		_, err := store.MarkPageVisited("https://example.com/pending")
		require.NoError(t, err)

		status, entry, err := store.CheckPageStatus("https://example.com/pending")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusPending, status)
		assert.Nil(t, entry)
	})

	t.Run("success entry", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		require.NoError(t, store.UpdatePageStatus("https://example.com/success", &models.PageDBEntry{
			Status:      models.PageStatusSuccess,
			ProcessedAt: now,
			LastAttempt: now,
			Depth:       2,
			ContentHash: "abc123",
		}))

		status, entry, err := store.CheckPageStatus("https://example.com/success")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusSuccess, status)
		require.NotNil(t, entry)
		assert.Equal(t, "abc123", entry.ContentHash)
		assert.Equal(t, 2, entry.Depth)
	})

	t.Run("corrupted JSON falls back to pending", func(t *testing.T) {
		key := []byte(pageKeyPrefix + "https://example.com/corrupt")
		err := store.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(key, []byte("{invalid json")))
		})
		require.NoError(t, err)

		status, entry, err := store.CheckPageStatus("https://example.com/corrupt")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusPending, status)
		assert.Nil(t, entry)
	})
}

func TestUpdatePageStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("new entry", func(t *testing.T) {
		err := store.UpdatePageStatus("https://example.com/new", &models.PageDBEntry{
			Status:      models.PageStatusSuccess,
			LastAttempt: time.Now(),
		})
		require.NoError(t, err)
		count, _ := store.GetVisitedCount()
		assert.Equal(t, 1, count)
	})

	t.Run("overwrite existing does not change count", func(t *testing.T) {
		err := store.UpdatePageStatus("https://example.com/new", &models.PageDBEntry{
			Status:    models.PageStatusFailure,
			ErrorType: "HTTP_Server",
		})
		require.NoError(t, err)
		count, _ := store.GetVisitedCount()
		assert.Equal(t, 1, count)

		status, got, err := store.CheckPageStatus("https://example.com/new")
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusFailure, status)
		assert.Equal(t, "HTTP_Server", got.ErrorType)
	})

	t.Run("marked then updated keeps count", func(t *testing.T) {
		_, err := store.MarkPageVisited("https://example.com/marked")
		require.NoError(t, err)
		require.NoError(t, store.UpdatePageStatus("https://example.com/marked", &models.PageDBEntry{Status: models.PageStatusSkipped}))
		count, _ := store.GetVisitedCount()
		assert.Equal(t, 2, count)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		err := store.UpdatePageStatus("https://example.com/x", &models.PageDBEntry{Status: models.PageStatusDBError})
		assert.ErrorIs(t, err, utils.ErrDatabase)
		err = store.UpdatePageStatus("https://example.com/x", nil)
		assert.ErrorIs(t, err, utils.ErrDatabase)
	})
}

func TestStatusCounts(t *testing.T) {
	store := newTestStore(t)
	_, _ = store.MarkPageVisited("https://example.com/a")
	_, _ = store.MarkPageVisited("https://example.com/b")
	require.NoError(t, store.UpdatePageStatus("https://example.com/b", &models.PageDBEntry{Status: models.PageStatusSuccess}))
	require.NoError(t, store.UpdatePageStatus("https://example.com/c", &models.PageDBEntry{Status: models.PageStatusFailure}))
	require.NoError(t, store.UpdatePageStatus("https://example.com/d", &models.PageDBEntry{Status: models.PageStatusSuccess}))

	counts, err := store.StatusCounts()
	require.NoError(t, err)
	assert.Equal(t, map[models.PageStatus]int{
		models.PageStatusPending: 1,
		models.PageStatusSuccess: 2,
		models.PageStatusFailure: 1,
	}, counts)
}

func TestWriteVisitedLog(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		store := newTestStore(t)
		outPath := filepath.Join(t.TempDir(), "visited.txt")
		require.NoError(t, store.WriteVisitedLog(outPath))

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		assert.Empty(t, string(data))
	})

	t.Run("pages written with status and without prefix", func(t *testing.T) {
		store := newTestStore(t)
		_, _ = store.MarkPageVisited("https://example.com/page1")
		require.NoError(t, store.UpdatePageStatus("https://example.com/page2", &models.PageDBEntry{Status: models.PageStatusSuccess}))

		outPath := filepath.Join(t.TempDir(), "visited.txt")
		require.NoError(t, store.WriteVisitedLog(outPath))

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		assert.Equal(t, "pending\thttps://example.com/page1\nsuccess\thttps://example.com/page2\n", string(data))
	})

	t.Run("invalid path returns error", func(t *testing.T) {
		store := newTestStore(t)
		err := store.WriteVisitedLog("/nonexistent/dir/file.txt")
		assert.ErrorIs(t, err, utils.ErrFilesystem)
	})
}

func TestRunGC(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		store.RunGC(ctx, 50*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunGC did not respect context cancellation")
	}
}

func TestClose(t *testing.T) {
	store, err := NewBadgerStore(context.Background(), t.TempDir(), "run", testLogger())
	require.NoError(t, err)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestDBUpdateConflictRetry(t *testing.T) {
	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			if attempts <= 3 {
				return badger.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return badger.ErrConflict
		})
		require.ErrorIs(t, err, utils.ErrDatabase)
		assert.Contains(t, err.Error(), "transaction conflict not resolved")
		assert.Equal(t, maxConflictRetries, attempts)
	})

	t.Run("non-conflict error returned immediately", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		sentinel := errors.New("some other error")
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})
}
