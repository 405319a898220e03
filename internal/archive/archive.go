// ABOUTME: Gallery export as a zstd-compressed tar with a JSON manifest
// ABOUTME: Streams saved images to any writer and writes files atomically via rename

package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/2389/imagegen/internal/store"
)

// ManifestName is the first entry of every archive.
const ManifestName = "manifest.json"

// FormatVersion is bumped when the manifest layout changes.
const FormatVersion = 1

// Lister is the part of the gallery an export needs.
type Lister interface {
	ListSavedImages(ctx context.Context) ([]*store.SavedImage, error)
}

// Manifest describes the contents of an archive.
type Manifest struct {
	Version    int       `json:"version"`
	Profile    string    `json:"profile"`
	ExportedAt time.Time `json:"exported_at"`
	Images     []Entry   `json:"images"`
}

// Entry describes one exported image.
type Entry struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	MIMEType  string    `json:"mime_type"`
	File      string    `json:"file"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func fileName(img *store.SavedImage) string {
	ext, ok := extensions[img.MIMEType]
	if !ok {
		ext = ".bin"
	}
	return "images/" + img.ID + ext
}

// Export writes every saved image, newest first, to w. The manifest comes
// first so readers can stop early.
func Export(ctx context.Context, src Lister, profileName string, w io.Writer) (*Manifest, error) {
	images, err := src.ListSavedImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing saved images: %w", err)
	}

	m := &Manifest{
		Version:    FormatVersion,
		Profile:    profileName,
		ExportedAt: time.Now().UTC(),
		Images:     make([]Entry, 0, len(images)),
	}
	for _, img := range images {
		m.Images = append(m.Images, Entry{
			ID:        img.ID,
			Prompt:    img.Prompt,
			MIMEType:  img.MIMEType,
			File:      fileName(img),
			Size:      len(img.ImageBytes),
			CreatedAt: img.CreatedAt,
			UpdatedAt: img.UpdatedAt,
		})
	}
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	tw := tar.NewWriter(zw)

	if err := writeEntry(tw, ManifestName, manifest, m.ExportedAt); err != nil {
		zw.Close()
		return nil, err
	}
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return nil, err
		}
		if err := writeEntry(tw, m.Images[i].File, img.ImageBytes, img.CreatedAt); err != nil {
			zw.Close()
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		return nil, fmt.Errorf("closing tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing zstd stream: %w", err)
	}
	return m, nil
}

func writeEntry(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: modTime,
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// ExportFile exports to path through a temp file that is synced and renamed
// into place, so an interrupted export never leaves a partial archive.
func ExportFile(ctx context.Context, src Lister, profileName, path string) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	tmpFile := path + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return nil, err
	}

	m, err := Export(ctx, src, profileName, file)
	if err != nil {
		file.Close()
		os.Remove(tmpFile)
		return nil, err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return nil, err
	}

	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return nil, err
	}

	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return nil, err
	}
	return m, nil
}

// Read decodes an archive and returns its manifest with the image bytes
// keyed by entry ID.
func Read(r io.Reader) (*Manifest, map[string][]byte, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	files := make(map[string][]byte)
	var m *Manifest

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading archive: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", hdr.Name, err)
		}
		if hdr.Name == ManifestName {
			m = &Manifest{}
			if err := json.Unmarshal(data, m); err != nil {
				return nil, nil, fmt.Errorf("decoding manifest: %w", err)
			}
			continue
		}
		files[hdr.Name] = data
	}

	if m == nil {
		return nil, nil, errors.New("archive has no manifest")
	}

	images := make(map[string][]byte, len(m.Images))
	for _, e := range m.Images {
		data, ok := files[e.File]
		if !ok {
			return nil, nil, fmt.Errorf("archive is missing %s", e.File)
		}
		images[e.ID] = data
	}
	return m, images, nil
}

// ReadFile reads an archive from path.
func ReadFile(path string) (*Manifest, map[string][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return Read(f)
}
