// ABOUTME: Fan-out of attempt snapshots to per-role watchers
// ABOUTME: Replays the latest snapshot on subscribe and never blocks the controller

package lifecycle

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

type subscriber struct {
	id      string
	ch      chan Snapshot
	dropped int
}

// Broadcaster delivers every published Snapshot to the subscribers of its
// role. It remembers the latest snapshot per role, so a new subscriber first
// receives the role's current state and then every later transition.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[Role][]*subscriber
	latest map[Role]Snapshot
	closed bool
	logger *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[Role][]*subscriber),
		latest: make(map[Role]Snapshot),
		logger: logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a watcher of role. The returned channel is closed by
// Unsubscribe, by Close, or once ctx ends. Subscribing to a closed
// broadcaster returns an already closed channel.
func (b *Broadcaster) Subscribe(ctx context.Context, role Role) (<-chan Snapshot, string) {
	sub := &subscriber{
		id: uuid.New().String(),
		ch: make(chan Snapshot, subscriberBufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, sub.id
	}
	if snap, ok := b.latest[role]; ok {
		sub.ch <- snap
	}
	b.subs[role] = append(b.subs[role], sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.Unsubscribe(role, sub.id)
	}()

	return sub.ch, sub.id
}

// Publish records snap as its role's latest state and hands it to every
// subscriber with room in its buffer. Full subscribers miss it.
func (b *Broadcaster) Publish(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.latest[snap.Role] = snap

	for _, sub := range b.subs[snap.Role] {
		select {
		case sub.ch <- snap:
		default:
			sub.dropped++
			b.logger.Debug("subscriber full, snapshot dropped",
				"role", snap.Role,
				"sub_id", sub.id,
				"state", snap.State,
				"dropped", sub.dropped)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel. Unknown IDs are
// ignored.
func (b *Broadcaster) Unsubscribe(role Role, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[role]
	i := slices.IndexFunc(subs, func(s *subscriber) bool { return s.id == subID })
	if i < 0 {
		return
	}
	close(subs[i].ch)

	subs = slices.Delete(subs, i, i+1)
	if len(subs) == 0 {
		delete(b.subs, role)
	} else {
		b.subs[role] = subs
	}
}

// Close closes every subscription. Later publishes are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for role, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(b.subs, role)
	}
}
