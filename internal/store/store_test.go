package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/imagegen/internal/failure"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// stepClock returns a clock that advances by one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}

// eachStore runs fn against both Store implementations so they stay in step.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, setupTestStore(t))
	})
	t.Run("mock", func(t *testing.T) {
		fn(t, NewMockStore())
	})
}

func TestStore_SavedImageRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		data := append(append([]byte(nil), pngHeader...), 1, 2, 3)

		img, err := s.CreateSavedImage(ctx, data, "a red balloon")
		require.NoError(t, err)
		assert.NotEmpty(t, img.ID)
		assert.Equal(t, "image/png", img.MIMEType)

		// caller mutating its slice must not change the stored copy
		data[len(data)-1] = 9

		got, err := s.GetSavedImage(ctx, img.ID)
		require.NoError(t, err)
		assert.Equal(t, "a red balloon", got.Prompt)
		assert.Equal(t, byte(3), got.ImageBytes[len(got.ImageBytes)-1])
		assert.True(t, img.CreatedAt.Equal(got.CreatedAt))

		n, err := s.CountSavedImages(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestStore_EmptyImageRejected(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.CreateSavedImage(ctx, nil, "nothing")
		require.ErrorIs(t, err, ErrEmptyImage)
		assert.ErrorIs(t, err, failure.ErrInvalidInput)

		n, err := s.CountSavedImages(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestStore_EmptyPromptAllowed(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		img, err := s.CreateSavedImage(context.Background(), pngHeader, "")
		require.NoError(t, err)
		assert.Empty(t, img.Prompt)
	})
}

func TestStore_DeleteTwice(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		keep, err := s.CreateSavedImage(ctx, pngHeader, "keep")
		require.NoError(t, err)
		gone, err := s.CreateSavedImage(ctx, pngHeader, "gone")
		require.NoError(t, err)

		require.NoError(t, s.DeleteSavedImage(ctx, gone.ID))

		err = s.DeleteSavedImage(ctx, gone.ID)
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, failure.NotFound, failure.KindOf(err))

		n, err := s.CountSavedImages(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.GetSavedImage(ctx, keep.ID)
		assert.NoError(t, err)
		_, err = s.GetSavedImage(ctx, gone.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ReplaceSavedImageBytes(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		img, err := s.CreateSavedImage(ctx, []byte("plain text"), "cat")
		require.NoError(t, err)

		require.NoError(t, s.ReplaceSavedImageBytes(ctx, img.ID, pngHeader))

		got, err := s.GetSavedImage(ctx, img.ID)
		require.NoError(t, err)
		assert.Equal(t, pngHeader, got.ImageBytes)
		assert.Equal(t, "image/png", got.MIMEType)
		assert.Equal(t, "cat", got.Prompt)

		assert.ErrorIs(t, s.ReplaceSavedImageBytes(ctx, img.ID, nil), ErrEmptyImage)
		assert.ErrorIs(t, s.ReplaceSavedImageBytes(ctx, "missing", pngHeader), ErrNotFound)
	})
}

func TestStore_ProfileLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.GetProfile(ctx)
		require.ErrorIs(t, err, ErrNotFound)

		p, created, err := s.EnsureProfile(ctx, "User")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "User", p.DisplayName)

		again, created, err := s.EnsureProfile(ctx, "Someone Else")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, p.ID, again.ID)
		assert.Equal(t, "User", again.DisplayName)

		_, err = s.CreateProfile(ctx, "Second")
		assert.ErrorIs(t, err, ErrDuplicateProfile)

		require.NoError(t, s.UpdateProfileName(ctx, p.ID, "Ada"))
		got, err := s.GetProfile(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Ada", got.DisplayName)
		assert.Equal(t, p.ID, got.ID)

		assert.ErrorIs(t, s.UpdateProfileName(ctx, "other", "X"), ErrNotFound)
	})
}

func TestStore_ListOrdering(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	run := func(t *testing.T, s Store) {
		ctx := context.Background()
		first, err := s.CreateSavedImage(ctx, pngHeader, "first")
		require.NoError(t, err)
		second, err := s.CreateSavedImage(ctx, pngHeader, "second")
		require.NoError(t, err)
		third, err := s.CreateSavedImage(ctx, pngHeader, "third")
		require.NoError(t, err)

		list, err := s.ListSavedImages(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{third.ID, second.ID, first.ID},
			[]string{list[0].ID, list[1].ID, list[2].ID})
	}

	t.Run("sqlite", func(t *testing.T) {
		run(t, setupTestStore(t, WithClock(stepClock(base))))
	})
	t.Run("mock", func(t *testing.T) {
		m := NewMockStore()
		m.SetClock(stepClock(base))
		run(t, m)
	})
}

func TestStore_ListTiesKeepInsertionOrder(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := func() time.Time { return fixed }

	run := func(t *testing.T, s Store) {
		ctx := context.Background()
		var ids []string
		for _, p := range []string{"a", "b", "c"} {
			img, err := s.CreateSavedImage(ctx, pngHeader, p)
			require.NoError(t, err)
			ids = append(ids, img.ID)
		}

		list, err := s.ListSavedImages(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		for i := range ids {
			assert.Equal(t, ids[i], list[i].ID)
		}
	}

	t.Run("sqlite", func(t *testing.T) {
		run(t, setupTestStore(t, WithClock(clock)))
	})
	t.Run("mock", func(t *testing.T) {
		m := NewMockStore()
		m.SetClock(clock)
		run(t, m)
	})
}

func TestStore_ListEmpty(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		list, err := s.ListSavedImages(context.Background())
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
