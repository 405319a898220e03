// ABOUTME: Wires configuration, gallery store, image client and lifecycle controller
// ABOUTME: One app per process; the shell reuses it so caches survive across commands

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/2389/imagegen/internal/config"
	"github.com/2389/imagegen/internal/imageclient"
	"github.com/2389/imagegen/internal/lifecycle"
	"github.com/2389/imagegen/internal/metrics"
	"github.com/2389/imagegen/internal/profile"
	"github.com/2389/imagegen/internal/store"
	"github.com/2389/imagegen/internal/thumbnail"
)

type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	store      *store.SQLiteStore
	profiles   *profile.Manager
	gen        lifecycle.Generator
	controller *lifecycle.Controller
	policy     lifecycle.AcceptPolicy
	thumbs     *thumbnail.Cache
	metrics    metrics.Recorder

	in  *bufio.Reader
	out io.Writer

	// touched is set by commands that change what the metrics describe.
	// Read-only runs leave the previous textfile alone.
	touched bool
}

func newApp(ctx context.Context) (*app, error) {
	configPath := getConfigPath()
	cfg, found, err := config.LoadOrDefault(configPath, getDataPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	if !found {
		logger.Debug("no config file, using defaults", "path", configPath)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening gallery: %w", err)
	}

	client := imageclient.New(imageclient.Config{
		BaseURL:      cfg.Service.BaseURL,
		APIKey:       cfg.Service.APIKey,
		Organization: cfg.Service.Organization,
		Model:        cfg.Service.Model,
		Size:         cfg.Service.Size,
		Timeout:      cfg.Service.Timeout,
	}, imageclient.WithLogger(logger))

	a, err := assembleApp(ctx, cfg, s, client, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	a.configPath = configPath
	return a, nil
}

// assembleApp builds everything that sits on top of an open store and a
// generator.
func assembleApp(ctx context.Context, cfg *config.Config, s *store.SQLiteStore, gen lifecycle.Generator, logger *slog.Logger) (*app, error) {
	policy, err := lifecycle.ParseAcceptPolicy(cfg.Variation.AcceptPolicy)
	if err != nil {
		return nil, err
	}

	rec := metrics.New(cfg.Metrics.Enabled)
	if n, err := s.CountSavedImages(ctx); err == nil {
		rec.SetGalleryImages(n)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		profiles: profile.NewManager(s, logger),
		gen:      gen,
		thumbs: thumbnail.New(thumbnail.Options{
			Enabled: cfg.Cache.Enabled,
			SizeMB:  cfg.Cache.SizeMB,
			Side:    cfg.Cache.ThumbnailPx,
			TTL:     cfg.Cache.TTL,
		}, logger),
		metrics: rec,
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}
	a.controller = a.newController(policy)
	return a, nil
}

func (a *app) newController(policy lifecycle.AcceptPolicy) *lifecycle.Controller {
	a.policy = policy
	return lifecycle.NewController(a.gen, a.store,
		lifecycle.WithAcceptPolicy(policy),
		lifecycle.WithLogger(a.logger),
		lifecycle.WithMetrics(a.metrics),
	)
}

// withPolicy rebuilds the controller with a different variation accept
// policy. Attempts held by the old controller are dropped.
func (a *app) withPolicy(policy lifecycle.AcceptPolicy) {
	if policy == a.policy {
		return
	}
	a.controller.Close()
	a.controller = a.newController(policy)
}

func (a *app) close() {
	a.controller.Close()

	if a.cfg.Metrics.Enabled && a.touched {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.logger.Warn("writing metrics textfile", "path", a.cfg.Metrics.Textfile, "error", err)
		}
	}

	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing gallery", "error", err)
	}
}

func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
