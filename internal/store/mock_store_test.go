// ABOUTME: Unit tests for MockStore helpers used by other packages' tests
// ABOUTME: Covers error injection and write counting

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_SetError(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	boom := errors.New("disk full")

	m.SetError("CreateSavedImage", boom)
	_, err := m.CreateSavedImage(ctx, pngHeader, "x")
	require.ErrorIs(t, err, boom)
	assert.Zero(t, m.Writes())

	n, err := m.CountSavedImages(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	m.SetError("CreateSavedImage", nil)
	_, err = m.CreateSavedImage(ctx, pngHeader, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Writes())
}

func TestMockStore_WritesCountsOnlySuccess(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	img, err := m.CreateSavedImage(ctx, pngHeader, "x")
	require.NoError(t, err)
	require.NoError(t, m.ReplaceSavedImageBytes(ctx, img.ID, pngHeader))
	require.NoError(t, m.DeleteSavedImage(ctx, img.ID))
	assert.ErrorIs(t, m.DeleteSavedImage(ctx, img.ID), ErrNotFound)
	_, err = m.CreateSavedImage(ctx, nil, "empty")
	assert.ErrorIs(t, err, ErrEmptyImage)

	assert.Equal(t, 3, m.Writes())
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	img, err := m.CreateSavedImage(ctx, pngHeader, "x")
	require.NoError(t, err)
	img.ImageBytes[0] = 0

	got, err := m.GetSavedImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got.ImageBytes)
}
