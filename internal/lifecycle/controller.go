// ABOUTME: Request lifecycle controller for generation and variation attempts
// ABOUTME: Serializes transitions per role and commits accepted results to the gallery

package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/imagegen/internal/failure"
	"github.com/2389/imagegen/internal/metrics"
	"github.com/2389/imagegen/internal/store"
)

// ErrBusy is returned when a role already has an attempt in flight or
// awaiting its accept commit. It is an InvalidInput failure.
var ErrBusy = failure.New(failure.InvalidInput, "start", errors.New("an attempt of this role is already in progress"))

// Generator is the remote image service.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
	Vary(ctx context.Context, source []byte) ([]byte, error)
}

// attempt is the mutable record behind a Snapshot. Guarded by Controller.mu.
type attempt struct {
	id       string
	role     Role
	state    State
	prompt   string
	sourceID string
	result   []byte
	err      error
	savedID  string
	started  time.Time
	finished time.Time
	done     chan struct{} // closed when the attempt leaves Dispatched
}

func (a *attempt) snapshot() Snapshot {
	s := Snapshot{
		Role:         a.role,
		AttemptID:    a.id,
		State:        a.state,
		Prompt:       a.prompt,
		SourceID:     a.sourceID,
		SavedImageID: a.savedID,
		StartedAt:    a.started,
		FinishedAt:   a.finished,
	}
	switch a.state {
	case Succeeded, AcceptPending:
		s.Result = a.result
	case Failed:
		s.Failure = a.err
		s.FailureKind = failure.KindOf(a.err)
	}
	return s
}

// Controller owns the generation and variation state machines.
type Controller struct {
	mu       sync.Mutex
	attempts map[Role]*attempt

	gen     Generator
	images  store.ImageStore
	policy  AcceptPolicy
	metrics metrics.Recorder
	events  *Broadcaster
	logger  *slog.Logger
	now     func() time.Time

	wg sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithAcceptPolicy sets the variation accept policy. Default PolicyCreate.
func WithAcceptPolicy(p AcceptPolicy) Option {
	return func(c *Controller) {
		if p != "" {
			c.policy = p
		}
	}
}

// WithLogger sets the logger used by the controller.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger.With("component", "lifecycle")
		}
	}
}

// WithMetrics sets the metrics recorder. Default metrics.Noop.
func WithMetrics(m metrics.Recorder) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock overrides the time source used for StartedAt/FinishedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController creates a Controller with both roles Idle.
func NewController(gen Generator, images store.ImageStore, opts ...Option) *Controller {
	c := &Controller{
		attempts: make(map[Role]*attempt),
		gen:      gen,
		images:   images,
		policy:   PolicyCreate,
		metrics:  metrics.Noop{},
		logger:   slog.Default().With("component", "lifecycle"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = NewBroadcaster(c.logger)
	return c
}

// StartGeneration dispatches a generation for prompt and returns immediately
// with the Dispatched snapshot. An empty prompt leaves the state unchanged.
func (c *Controller) StartGeneration(ctx context.Context, prompt string) (Snapshot, error) {
	snap, _, err := c.startGeneration(ctx, prompt)
	return snap, err
}

func (c *Controller) startGeneration(ctx context.Context, prompt string) (Snapshot, *attempt, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return c.Snapshot(RoleGeneration), nil, failure.Errorf(failure.InvalidInput, "start generation", "prompt is empty")
	}
	return c.start(ctx, RoleGeneration, prompt, "", func(ctx context.Context) ([]byte, error) {
		return c.gen.Generate(ctx, prompt)
	})
}

// StartVariation dispatches a variation of src.Image and returns immediately
// with the Dispatched snapshot. Empty source bytes leave the state unchanged.
func (c *Controller) StartVariation(ctx context.Context, src Source) (Snapshot, error) {
	snap, _, err := c.startVariation(ctx, src)
	return snap, err
}

func (c *Controller) startVariation(ctx context.Context, src Source) (Snapshot, *attempt, error) {
	if len(src.Image) == 0 {
		return c.Snapshot(RoleVariation), nil, failure.Errorf(failure.InvalidInput, "start variation", "source image is empty")
	}
	image := append([]byte(nil), src.Image...)
	return c.start(ctx, RoleVariation, src.Prompt, src.SavedImageID, func(ctx context.Context) ([]byte, error) {
		return c.gen.Vary(ctx, image)
	})
}

func (c *Controller) start(ctx context.Context, role Role, prompt, sourceID string, call func(context.Context) ([]byte, error)) (Snapshot, *attempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev := c.attempts[role]; prev != nil && prev.state.Busy() {
		return prev.snapshot(), nil, ErrBusy
	}

	a := &attempt{
		id:       uuid.New().String(),
		role:     role,
		state:    Dispatched,
		prompt:   prompt,
		sourceID: sourceID,
		started:  c.now(),
		done:     make(chan struct{}),
	}
	// Any finished predecessor and its result are released here.
	c.attempts[role] = a
	snap := a.snapshot()
	c.events.Publish(snap)

	c.logger.Info("attempt dispatched", "role", role, "attempt_id", a.id)

	c.wg.Add(1)
	go c.run(context.WithoutCancel(ctx), a, call)

	return snap, a, nil
}

// run performs the remote call for a and records its outcome.
func (c *Controller) run(ctx context.Context, a *attempt, call func(context.Context) ([]byte, error)) {
	defer c.wg.Done()

	start := time.Now()
	data, err := call(ctx)
	if err == nil && len(data) == 0 {
		err = failure.Errorf(failure.DecodeFailure, string(a.role), "service returned no image bytes")
	}
	elapsed := time.Since(start)

	outcome := Succeeded.String()
	if err != nil {
		outcome = failure.KindOf(err).String()
	}
	c.metrics.ObserveAttempt(string(a.role), outcome, elapsed)

	c.mu.Lock()
	a.finished = c.now()
	if err != nil {
		a.state = Failed
		a.err = err
	} else {
		a.state = Succeeded
		a.result = data
	}
	close(a.done)
	c.events.Publish(a.snapshot())
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("attempt failed",
			"role", a.role,
			"attempt_id", a.id,
			"kind", failure.KindOf(err),
			"duration", elapsed,
			"error", err)
		return
	}
	c.logger.Info("attempt succeeded",
		"role", a.role,
		"attempt_id", a.id,
		"bytes", len(data),
		"duration", elapsed)
}

// Await blocks until the current attempt of role leaves Dispatched and
// returns its snapshot. It returns ctx.Err() if ctx ends first; the attempt
// keeps running.
func (c *Controller) Await(ctx context.Context, role Role) (Snapshot, error) {
	c.mu.Lock()
	a := c.attempts[role]
	c.mu.Unlock()

	if a == nil {
		return Snapshot{Role: role, State: Idle}, nil
	}
	return c.await(ctx, a)
}

func (c *Controller) await(ctx context.Context, a *attempt) (Snapshot, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		return a.snapshot(), ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return a.snapshot(), nil
}

// Generate starts a generation and waits for it. A failed attempt returns
// its failure as the error alongside the Failed snapshot. The snapshot is
// always of the attempt this call started, even if a later attempt of the
// same role has replaced it by the time it is read.
func (c *Controller) Generate(ctx context.Context, prompt string) (Snapshot, error) {
	snap, a, err := c.startGeneration(ctx, prompt)
	if err != nil {
		return snap, err
	}
	return c.settle(ctx, a)
}

// Vary starts a variation and waits for it, like Generate.
func (c *Controller) Vary(ctx context.Context, src Source) (Snapshot, error) {
	snap, a, err := c.startVariation(ctx, src)
	if err != nil {
		return snap, err
	}
	return c.settle(ctx, a)
}

func (c *Controller) settle(ctx context.Context, a *attempt) (Snapshot, error) {
	snap, err := c.await(ctx, a)
	if err != nil {
		return snap, err
	}
	if snap.State == Failed {
		return snap, snap.Failure
	}
	return snap, nil
}

// Accept commits the Succeeded result of role to the gallery. On a store
// failure the attempt returns to Succeeded, keeps its result and the error is
// a PersistFailure; calling Accept again retries the commit.
func (c *Controller) Accept(ctx context.Context, role Role) (Snapshot, error) {
	c.mu.Lock()
	a := c.attempts[role]
	if a == nil || a.state != Succeeded {
		snap := c.snapshotLocked(role)
		c.mu.Unlock()
		return snap, failure.Errorf(failure.InvalidTransition, "accept", "%s attempt is %s", role, snap.State)
	}
	a.state = AcceptPending
	c.events.Publish(a.snapshot())
	result, prompt, sourceID := a.result, a.prompt, a.sourceID
	c.mu.Unlock()

	mode := string(PolicyCreate)
	var savedID string
	var err error
	if role == RoleVariation && c.policy == PolicyReplace && sourceID != "" {
		mode = string(PolicyReplace)
		err = c.images.ReplaceSavedImageBytes(ctx, sourceID, result)
		savedID = sourceID
	} else {
		var img *store.SavedImage
		img, err = c.images.CreateSavedImage(ctx, result, prompt)
		if err == nil {
			savedID = img.ID
		}
	}

	c.mu.Lock()
	if err != nil {
		a.state = Succeeded
		snap := a.snapshot()
		c.events.Publish(snap)
		c.mu.Unlock()

		c.logger.Error("accept failed", "role", role, "attempt_id", a.id, "mode", mode, "error", err)
		return snap, failure.New(failure.PersistFailure, "accept", err)
	}
	a.state = Committed
	a.savedID = savedID
	a.result = nil
	snap := a.snapshot()
	c.events.Publish(snap)
	c.mu.Unlock()

	c.metrics.IncAccept(string(role), mode)
	c.logger.Info("attempt accepted", "role", role, "attempt_id", a.id, "mode", mode, "saved_image_id", savedID)

	if n, err := c.images.CountSavedImages(ctx); err == nil {
		c.metrics.SetGalleryImages(n)
	} else {
		c.logger.Warn("counting gallery images", "error", err)
	}
	return snap, nil
}

// Discard releases the Succeeded result of role without touching the store.
func (c *Controller) Discard(role Role) (Snapshot, error) {
	c.mu.Lock()
	a := c.attempts[role]
	if a == nil || a.state != Succeeded {
		snap := c.snapshotLocked(role)
		c.mu.Unlock()
		return snap, failure.Errorf(failure.InvalidTransition, "discard", "%s attempt is %s", role, snap.State)
	}
	a.state = Discarded
	a.result = nil
	snap := a.snapshot()
	c.events.Publish(snap)
	c.mu.Unlock()

	c.metrics.IncDiscard(string(role))
	c.logger.Info("attempt discarded", "role", role, "attempt_id", a.id)
	return snap, nil
}

// Snapshot returns the current state of role.
func (c *Controller) Snapshot(role Role) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(role)
}

func (c *Controller) snapshotLocked(role Role) Snapshot {
	if a := c.attempts[role]; a != nil {
		return a.snapshot()
	}
	return Snapshot{Role: role, State: Idle}
}

// Busy reports whether role would reject a new attempt.
func (c *Controller) Busy(role Role) bool {
	return c.Snapshot(role).Busy()
}

// Subscribe delivers the role's last published snapshot followed by every
// later transition until ctx ends. Slow subscribers lose snapshots rather
// than blocking the controller.
func (c *Controller) Subscribe(ctx context.Context, role Role) (<-chan Snapshot, string) {
	return c.events.Subscribe(ctx, role)
}

// Unsubscribe ends a subscription early.
func (c *Controller) Unsubscribe(role Role, subID string) {
	c.events.Unsubscribe(role, subID)
}

// Wait blocks until every dispatched remote call has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close waits for in-flight calls and closes all subscriptions.
func (c *Controller) Close() {
	c.wg.Wait()
	c.events.Close()
}
