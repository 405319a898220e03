// Package thumbnail renders and caches small PNG previews of gallery images.
//
// Entries live in a freecache.Cache keyed by image ID. Each entry records the
// image's UpdatedAt, so a thumbnail rendered before the bytes were replaced is
// treated as a miss. Entries expire after Options.TTL, rounded up to whole
// seconds. Full-size images are not cached: freecache rejects entries larger
// than 1/1024 of its size.
package thumbnail
