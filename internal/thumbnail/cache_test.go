package thumbnail

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/imagegen/internal/store"
)

func savedPNG(t *testing.T, id string, w, h int, updated time.Time) *store.SavedImage {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return &store.SavedImage{ID: id, ImageBytes: buf.Bytes(), UpdatedAt: updated}
}

func TestCache_HitAfterMiss(t *testing.T) {
	c := New(Options{Enabled: true, SizeMB: 1, Side: 32}, nil)
	img := savedPNG(t, "img-1", 200, 100, time.Unix(100, 0))

	first, err := c.Get(img)
	require.NoError(t, err)
	assert.Equal(t, 32, first.Width)
	assert.Equal(t, 16, first.Height)

	second, err := c.Get(img)
	require.NoError(t, err)
	assert.Equal(t, first.PNG, second.PNG)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCache_ReplacedBytesMiss(t *testing.T) {
	c := New(Options{Enabled: true, SizeMB: 1, Side: 32}, nil)

	_, err := c.Get(savedPNG(t, "img-1", 64, 64, time.Unix(100, 0)))
	require.NoError(t, err)

	thumb, err := c.Get(savedPNG(t, "img-1", 64, 32, time.Unix(200, 0)))
	require.NoError(t, err)
	assert.Equal(t, 32, thumb.Width)
	assert.Equal(t, 16, thumb.Height)
}

func TestCache_Invalidate(t *testing.T) {
	c := New(Options{Enabled: true, SizeMB: 1}, nil)
	img := savedPNG(t, "img-1", 10, 10, time.Unix(1, 0))

	_, err := c.Get(img)
	require.NoError(t, err)
	c.Invalidate(img.ID)
	_, err = c.Get(img)
	require.NoError(t, err)

	hits, misses := c.Stats()
	assert.Zero(t, hits)
	assert.Equal(t, int64(2), misses)
}

func TestCache_Disabled(t *testing.T) {
	c := New(Options{Enabled: false}, nil)
	img := savedPNG(t, "img-1", 300, 300, time.Unix(1, 0))

	thumb, err := c.Get(img)
	require.NoError(t, err)
	assert.Equal(t, DefaultSide, thumb.Width)

	c.Invalidate(img.ID)
	hits, misses := c.Stats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
}

func TestCache_UndecodableImage(t *testing.T) {
	c := New(Options{Enabled: true, SizeMB: 1}, nil)
	_, err := c.Get(&store.SavedImage{ID: "bad", ImageBytes: []byte("nope")})
	assert.Error(t, err)
}

func TestCache_TTLAppliedToEntries(t *testing.T) {
	c := New(Options{Enabled: true, SizeMB: 1, TTL: 90 * time.Second}, nil)
	img := savedPNG(t, "img-1", 10, 10, time.Unix(1, 0))

	_, err := c.Get(img)
	require.NoError(t, err)

	left, err := c.cache.TTL([]byte(img.ID))
	require.NoError(t, err)
	assert.Greater(t, left, uint32(0))
	assert.LessOrEqual(t, left, uint32(90))
}

func TestCache_NoTTLNeverExpires(t *testing.T) {
	c := New(Options{Enabled: true, SizeMB: 1}, nil)
	img := savedPNG(t, "img-1", 10, 10, time.Unix(1, 0))

	_, err := c.Get(img)
	require.NoError(t, err)

	left, err := c.cache.TTL([]byte(img.ID))
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestExpirySeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Hour, 3600},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expirySeconds(tt.ttl), "ttl %v", tt.ttl)
	}
}
