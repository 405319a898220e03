// ABOUTME: In-memory PNG thumbnail cache for gallery images backed by freecache
// ABOUTME: Entries are versioned by the image's UpdatedAt so replaced bytes miss

package thumbnail

import (
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"

	"github.com/2389/imagegen/internal/imageconv"
	"github.com/2389/imagegen/internal/store"
)

const (
	DefaultSizeMB = 128
	DefaultSide   = 128
)

// Thumbnail is a small PNG preview of a saved image.
type Thumbnail struct {
	PNG    []byte
	Width  int
	Height int
}

// entry is the cached encoding of a Thumbnail.
type entry struct {
	Version int64  `json:"v"`
	Width   int    `json:"w"`
	Height  int    `json:"h"`
	PNG     []byte `json:"png"`
}

// Options configures a Cache.
type Options struct {
	Enabled bool
	SizeMB  int
	Side    int           // longest side in pixels
	TTL     time.Duration // 0 means no expiry
}

// Cache renders and caches thumbnails. A disabled Cache renders every call.
type Cache struct {
	cache  *freecache.Cache
	side   int
	ttl    int // seconds, as freecache expects
	logger *slog.Logger
}

// New creates a Cache. Pass nil logger for default.
func New(opts Options, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Side <= 0 {
		opts.Side = DefaultSide
	}
	if opts.SizeMB <= 0 {
		opts.SizeMB = DefaultSizeMB
	}

	c := &Cache{
		side:   opts.Side,
		ttl:    expirySeconds(opts.TTL),
		logger: logger.With("component", "thumbnail"),
	}
	if !opts.Enabled {
		c.logger.Debug("thumbnail cache disabled")
		return c
	}

	c.cache = freecache.NewCache(opts.SizeMB * 1024 * 1024)
	c.logger.Debug("thumbnail cache initialized", "size_mb", opts.SizeMB, "side", opts.Side, "ttl", opts.TTL)
	return c
}

// expirySeconds rounds ttl up to whole seconds so a sub-second TTL still
// expires instead of meaning forever.
func expirySeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	return int((ttl + time.Second - 1) / time.Second)
}

// unsafeStringToBytes converts string to []byte without allocation.
// freecache copies keys, so the result is never written through.
func unsafeStringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Get returns the thumbnail of img, rendering it on a miss.
func (c *Cache) Get(img *store.SavedImage) (*Thumbnail, error) {
	version := img.UpdatedAt.UnixNano()

	if c.cache != nil {
		if raw, err := c.cache.Get(unsafeStringToBytes(img.ID)); err == nil {
			var e entry
			if err := json.Unmarshal(raw, &e); err == nil && e.Version == version {
				return &Thumbnail{PNG: e.PNG, Width: e.Width, Height: e.Height}, nil
			}
		}
	}

	data, w, h, err := imageconv.Thumbnail(img.ImageBytes, c.side)
	if err != nil {
		return nil, fmt.Errorf("rendering thumbnail for %s: %w", img.ID, err)
	}
	thumb := &Thumbnail{PNG: data, Width: w, Height: h}

	if c.cache != nil {
		raw, err := json.Marshal(entry{Version: version, Width: w, Height: h, PNG: data})
		if err == nil {
			err = c.cache.Set(unsafeStringToBytes(img.ID), raw, c.ttl)
		}
		if err != nil {
			c.logger.Debug("thumbnail not cached", "id", img.ID, "error", err)
		}
	}
	return thumb, nil
}

// Invalidate drops the cached thumbnail of id.
func (c *Cache) Invalidate(id string) {
	if c.cache == nil {
		return
	}
	c.cache.Del(unsafeStringToBytes(id))
}

// Stats returns the hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses int64) {
	if c.cache == nil {
		return 0, 0
	}
	return c.cache.HitCount(), c.cache.MissCount()
}
