// ABOUTME: Profile manager for the single local display-name record
// ABOUTME: Creates the profile lazily and validates renames before committing

package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/imagegen/internal/failure"
	"github.com/2389/imagegen/internal/store"
)

// DefaultDisplayName is the name given to a lazily created profile.
const DefaultDisplayName = "User"

// Manager reads and renames the profile. Creation is serialized by the
// manager and made atomic by the store.
type Manager struct {
	mu     sync.Mutex
	store  store.ProfileStore
	logger *slog.Logger
}

// NewManager creates a Manager. Pass nil logger for default.
func NewManager(s store.ProfileStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  s,
		logger: logger.With("component", "profile"),
	}
}

// Profile returns the profile, creating it with DefaultDisplayName on first use.
func (m *Manager) Profile(ctx context.Context) (*store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(ctx)
}

func (m *Manager) ensureLocked(ctx context.Context) (*store.Profile, error) {
	p, created, err := m.store.EnsureProfile(ctx, DefaultDisplayName)
	if err != nil {
		return nil, failure.New(failure.PersistFailure, "profile", err)
	}
	if created {
		m.logger.Info("profile created", "id", p.ID, "name", p.DisplayName)
	}
	return p, nil
}

// DisplayName returns the profile's display name.
func (m *Manager) DisplayName(ctx context.Context) (string, error) {
	p, err := m.Profile(ctx)
	if err != nil {
		return "", err
	}
	return p.DisplayName, nil
}

// Rename stores name, trimmed, as the display name. A missing profile is
// created already carrying name, so a failed rename never leaves a default
// profile behind. An empty name is rejected and the stored name is left
// unchanged.
func (m *Manager) Rename(ctx context.Context, name string) (*store.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, failure.Errorf(failure.InvalidInput, "rename", "display name is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, created, err := m.store.EnsureProfile(ctx, name)
	if err != nil {
		return nil, failure.New(failure.PersistFailure, "rename", err)
	}
	if created {
		m.logger.Info("profile created", "id", p.ID, "name", p.DisplayName)
		return p, nil
	}
	if p.DisplayName == name {
		return p, nil
	}

	if err := m.store.UpdateProfileName(ctx, p.ID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, failure.New(failure.PersistFailure, "rename", fmt.Errorf("profile %s vanished: %w", p.ID, err))
		}
		return nil, failure.New(failure.PersistFailure, "rename", err)
	}

	updated, err := m.store.GetProfile(ctx)
	if err != nil {
		return nil, failure.New(failure.PersistFailure, "rename", err)
	}

	m.logger.Info("profile renamed", "id", p.ID, "from", p.DisplayName, "to", name)
	return updated, nil
}
