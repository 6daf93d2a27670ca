// Package storetest holds the behaviour every store.Store implementation must show.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dukkan/backend/internal/store"
)

type item struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Run exercises s. The store must be empty for the collections it touches.
func Run(t *testing.T, s store.Store) {
	t.Helper()

	t.Run("AddStampsIDAndTimestamps", func(t *testing.T) { testAdd(t, s) })
	t.Run("UpdateMergesPatch", func(t *testing.T) { testUpdate(t, s) })
	t.Run("RemoveAndFind", func(t *testing.T) { testRemoveAndFind(t, s) })
	t.Run("AtomicRollsBackOnError", func(t *testing.T) { testAtomicRollback(t, s) })
	t.Run("AtomicSerializesReadModifyWrite", func(t *testing.T) { testAtomicSerializes(t, s) })
}

func testAdd(t *testing.T, s store.Store) {
	ctx := context.Background()
	items := store.NewCollection[item](s, "st_add")

	created, err := items.Add(ctx, item{Name: "first", Count: 1})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	doc, err := s.GetByID(ctx, "st_add", created.ID)
	require.NoError(t, err)
	assert.False(t, store.CreatedAt(doc).IsZero())

	_, err = items.Add(ctx, item{ID: created.ID, Name: "dup"})
	require.Error(t, err)

	second, err := items.Add(ctx, item{ID: "fixed-id", Name: "second"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", second.ID)

	all, err := items.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Name)
	assert.Equal(t, "second", all[1].Name)

	_, err = s.GetByID(ctx, "st_add", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	items := store.NewCollection[item](s, "st_update")

	created, err := items.Add(ctx, item{Name: "widget", Count: 3})
	require.NoError(t, err)

	updated, err := items.Update(ctx, created.ID, map[string]any{"count": 7, "id": "hijack"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "widget", updated.Name)
	assert.Equal(t, 7, updated.Count)

	_, err = items.Update(ctx, "missing", map[string]any{"count": 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRemoveAndFind(t *testing.T, s store.Store) {
	ctx := context.Background()
	items := store.NewCollection[item](s, "st_find")

	a, err := items.Add(ctx, item{Name: "a", Count: 5})
	require.NoError(t, err)
	_, err = items.Add(ctx, item{Name: "b", Count: 5})
	require.NoError(t, err)
	_, err = items.Add(ctx, item{Name: "c", Count: 6})
	require.NoError(t, err)

	found, err := items.FindBy(ctx, "count", 5)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	one, err := items.FindOne(ctx, "name", "c")
	require.NoError(t, err)
	assert.Equal(t, 6, one.Count)

	_, err = items.FindOne(ctx, "name", "zzz")
	assert.ErrorIs(t, err, store.ErrNotFound)

	removed, err := items.Remove(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = items.Remove(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	found, err = items.FindBy(ctx, "count", 5)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func testAtomicRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	items := store.NewCollection[item](s, "st_rollback")

	kept, err := items.Add(ctx, item{Name: "kept", Count: 1})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		txItems := items.On(tx)
		if _, err := txItems.Update(ctx, kept.ID, map[string]any{"count": 99}); err != nil {
			return err
		}
		if _, err := txItems.Add(ctx, item{Name: "ghost"}); err != nil {
			return err
		}
		seen, err := txItems.FindBy(ctx, "name", "ghost")
		if err != nil {
			return err
		}
		if len(seen) != 1 {
			return errors.New("transaction cannot read its own write")
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := items.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].Count)
}

func testAtomicSerializes(t *testing.T, s store.Store) {
	ctx := context.Background()
	items := store.NewCollection[item](s, "st_counter")

	counter, err := items.Add(ctx, item{Name: "counter"})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
				doc, err := tx.GetByID(ctx, "st_counter", counter.ID)
				if err != nil {
					return err
				}
				var current item
				if err := json.Unmarshal(doc, &current); err != nil {
					return err
				}
				_, err = items.On(tx).Update(ctx, counter.ID, map[string]any{"count": current.Count + 1})
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := items.Get(ctx, counter.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, final.Count)
}
