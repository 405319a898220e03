// ABOUTME: Store interfaces and data types for the local gallery
// ABOUTME: Defines Profile, SavedImage and the ProfileStore/ImageStore contracts

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/imagegen/internal/failure"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = failure.ErrNotFound

// ErrEmptyImage is returned when a write would store an image with no bytes
var ErrEmptyImage = failure.New(failure.InvalidInput, "store", errors.New("image bytes are empty"))

// ErrDuplicateProfile is returned when creating a profile while one already exists
var ErrDuplicateProfile = errors.New("profile already exists")

// Profile is the single local identity record
type Profile struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SavedImage is an accepted generation or variation result
type SavedImage struct {
	ID         string
	Prompt     string
	ImageBytes []byte
	MIMEType   string // sniffed from ImageBytes at write time
	CreatedAt  time.Time
	UpdatedAt  time.Time // moves only when the bytes are replaced
}

// ProfileStore persists the singleton profile
type ProfileStore interface {
	CreateProfile(ctx context.Context, name string) (*Profile, error)
	GetProfile(ctx context.Context) (*Profile, error)
	UpdateProfileName(ctx context.Context, id, name string) error

	// EnsureProfile returns the existing profile or creates one named
	// defaultName, in one atomic step. created reports which happened.
	EnsureProfile(ctx context.Context, defaultName string) (p *Profile, created bool, err error)
}

// ImageStore persists saved gallery images
type ImageStore interface {
	CreateSavedImage(ctx context.Context, data []byte, prompt string) (*SavedImage, error)
	GetSavedImage(ctx context.Context, id string) (*SavedImage, error)

	// ListSavedImages returns every saved image, newest first. Images with the
	// same CreatedAt keep their insertion order.
	ListSavedImages(ctx context.Context) ([]*SavedImage, error)
	CountSavedImages(ctx context.Context) (int, error)
	DeleteSavedImage(ctx context.Context, id string) error
	ReplaceSavedImageBytes(ctx context.Context, id string, data []byte) error
}

// Store is the full gallery persistence contract
type Store interface {
	ProfileStore
	ImageStore

	// Close releases any resources held by the store
	Close() error
}
