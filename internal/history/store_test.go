package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/scflocal/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func sampleRecord(id, function string, started time.Time) *Record {
	return &Record{
		ID:           id,
		Namespace:    "default",
		Function:     function,
		Runtime:      "python3.6",
		Status:       StatusSucceeded,
		TemplatePath: "/tmp/template.yaml",
		TemplateHash: "abc",
		PlanHash:     "def",
		StartedAt:    started,
		FinishedAt:   started.Add(150 * time.Millisecond),
	}
}

func TestRecordAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := sampleRecord("inv-1", "hello", started)
	rec.Status = StatusTimedOut
	rec.ExitCode = -1
	rec.LastError = `Function "hello" timeout after 3 seconds`
	rec.Debug = true
	require.NoError(t, s.Record(ctx, rec))

	got, err := s.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, got.Status)
	assert.Equal(t, -1, got.ExitCode)
	assert.Equal(t, rec.LastError, got.LastError)
	assert.True(t, got.Debug)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, 150*time.Millisecond, got.Duration())
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Record(ctx, nil))
	assert.Error(t, s.Record(ctx, &Record{}))
	assert.Error(t, s.Record(ctx, &Record{ID: "x"}))
}

func TestListNewestFirstWithFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		fn := "hello"
		if i%2 == 1 {
			fn = "world"
		}
		require.NoError(t, s.Record(ctx, sampleRecord(fmt.Sprintf("inv-%d", i), fn, base.Add(time.Duration(i)*time.Minute))))
	}

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "inv-4", all[0].ID)
	assert.Equal(t, "inv-0", all[4].ID)

	hello, err := s.List(ctx, "hello", 2)
	require.NoError(t, err)
	require.Len(t, hello, 2)
	assert.Equal(t, "inv-4", hello[0].ID)
	assert.Equal(t, "inv-2", hello[1].ID)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, sampleRecord("old", "hello", time.Now().Add(-48*time.Hour))))
	require.NoError(t, s.Record(ctx, sampleRecord("new", "hello", time.Now())))

	n, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].ID)

	_, err = s.Prune(ctx, 0)
	assert.Error(t, err)
}
