// ABOUTME: Mock Store implementation for testing
// ABOUTME: In-memory gallery with per-method error injection and a write counter

package store

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	profile *Profile
	images  []*SavedImage // insertion order
	errs    map[string]error
	writes  int
	now     func() time.Time
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		errs: make(map[string]error),
		now:  time.Now,
	}
}

// SetClock overrides the time source used for CreatedAt/UpdatedAt.
func (m *MockStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetError makes every call to the named method (e.g. "CreateSavedImage")
// fail with err until cleared with a nil err.
func (m *MockStore) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, method)
		return
	}
	m.errs[method] = err
}

// Writes returns how many successful write operations the store has committed.
func (m *MockStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MockStore) injected(method string) error {
	return m.errs[method]
}

func copyImage(img *SavedImage) *SavedImage {
	c := *img
	c.ImageBytes = append([]byte(nil), img.ImageBytes...)
	return &c
}

// CreateProfile stores the profile if none exists.
func (m *MockStore) CreateProfile(ctx context.Context, name string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected("CreateProfile"); err != nil {
		return nil, err
	}
	if m.profile != nil {
		return nil, ErrDuplicateProfile
	}

	now := m.now().UTC()
	m.profile = &Profile{ID: uuid.New().String(), DisplayName: name, CreatedAt: now, UpdatedAt: now}
	m.writes++

	result := *m.profile
	return &result, nil
}

// GetProfile returns a copy of the profile.
func (m *MockStore) GetProfile(ctx context.Context) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.injected("GetProfile"); err != nil {
		return nil, err
	}
	if m.profile == nil {
		return nil, ErrNotFound
	}
	result := *m.profile
	return &result, nil
}

// UpdateProfileName renames the profile.
func (m *MockStore) UpdateProfileName(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected("UpdateProfileName"); err != nil {
		return err
	}
	if m.profile == nil || m.profile.ID != id {
		return ErrNotFound
	}
	m.profile.DisplayName = name
	m.profile.UpdatedAt = m.now().UTC()
	m.writes++
	return nil
}

// EnsureProfile returns the profile, creating it with defaultName if missing.
func (m *MockStore) EnsureProfile(ctx context.Context, defaultName string) (*Profile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected("EnsureProfile"); err != nil {
		return nil, false, err
	}
	created := false
	if m.profile == nil {
		now := m.now().UTC()
		m.profile = &Profile{ID: uuid.New().String(), DisplayName: defaultName, CreatedAt: now, UpdatedAt: now}
		m.writes++
		created = true
	}
	result := *m.profile
	return &result, created, nil
}

// CreateSavedImage stores a copy of data.
func (m *MockStore) CreateSavedImage(ctx context.Context, data []byte, prompt string) (*SavedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected("CreateSavedImage"); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	now := m.now().UTC()
	img := &SavedImage{
		ID:         uuid.New().String(),
		Prompt:     prompt,
		ImageBytes: append([]byte(nil), data...),
		MIMEType:   http.DetectContentType(data),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.images = append(m.images, img)
	m.writes++
	return copyImage(img), nil
}

// GetSavedImage returns a copy of the saved image.
func (m *MockStore) GetSavedImage(ctx context.Context, id string) (*SavedImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.injected("GetSavedImage"); err != nil {
		return nil, err
	}
	for _, img := range m.images {
		if img.ID == id {
			return copyImage(img), nil
		}
	}
	return nil, ErrNotFound
}

// ListSavedImages returns copies of all saved images, newest first.
func (m *MockStore) ListSavedImages(ctx context.Context) ([]*SavedImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.injected("ListSavedImages"); err != nil {
		return nil, err
	}
	result := make([]*SavedImage, 0, len(m.images))
	for _, img := range m.images {
		result = append(result, copyImage(img))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// CountSavedImages returns the number of saved images.
func (m *MockStore) CountSavedImages(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.injected("CountSavedImages"); err != nil {
		return 0, err
	}
	return len(m.images), nil
}

// DeleteSavedImage removes a saved image.
func (m *MockStore) DeleteSavedImage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected("DeleteSavedImage"); err != nil {
		return err
	}
	for i, img := range m.images {
		if img.ID == id {
			m.images = append(m.images[:i], m.images[i+1:]...)
			m.writes++
			return nil
		}
	}
	return ErrNotFound
}

// ReplaceSavedImageBytes swaps the bytes of a saved image.
func (m *MockStore) ReplaceSavedImageBytes(ctx context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected("ReplaceSavedImageBytes"); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyImage
	}
	for _, img := range m.images {
		if img.ID == id {
			img.ImageBytes = append([]byte(nil), data...)
			img.MIMEType = http.DetectContentType(data)
			img.UpdatedAt = m.now().UTC()
			m.writes++
			return nil
		}
	}
	return ErrNotFound
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
