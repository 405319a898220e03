// ABOUTME: Roles, attempt states, accept policies and observable snapshots
// ABOUTME: Value types shared by the controller, its broadcaster and callers

package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/2389/imagegen/internal/failure"
)

// Role names one of the two independent state machines.
type Role string

const (
	RoleGeneration Role = "generation"
	RoleVariation  Role = "variation"
)

// Roles lists every role in a fixed order.
var Roles = []Role{RoleGeneration, RoleVariation}

// State is the position of an attempt in its state machine.
type State int

const (
	Idle State = iota
	Dispatched
	Succeeded
	Failed
	AcceptPending
	Committed
	Discarded
)

var stateNames = [...]string{
	Idle:          "idle",
	Dispatched:    "dispatched",
	Succeeded:     "succeeded",
	Failed:        "failed",
	AcceptPending: "accept_pending",
	Committed:     "committed",
	Discarded:     "discarded",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Busy reports whether a new attempt of the same role must be rejected.
func (s State) Busy() bool {
	return s == Dispatched || s == AcceptPending
}

// AcceptPolicy decides what accepting a variation writes.
type AcceptPolicy string

const (
	// PolicyCreate saves a variation as a new gallery image.
	PolicyCreate AcceptPolicy = "create"
	// PolicyReplace overwrites the bytes of the gallery image the variation
	// came from. Sources that are not gallery images fall back to create.
	PolicyReplace AcceptPolicy = "replace"
)

// ParseAcceptPolicy parses a policy name; "" means PolicyCreate.
func ParseAcceptPolicy(s string) (AcceptPolicy, error) {
	switch AcceptPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyCreate:
		return PolicyCreate, nil
	case PolicyReplace:
		return PolicyReplace, nil
	default:
		return "", fmt.Errorf("unknown accept policy %q (want create or replace)", s)
	}
}

// Source is the input of a variation attempt.
type Source struct {
	Image  []byte
	Prompt string // prompt the source image was generated from

	// SavedImageID is set when the source is a gallery image.
	SavedImageID string
}

// Snapshot is a read-only view of one role at one point in time.
// Result is shared with the controller and must not be modified.
type Snapshot struct {
	Role      Role
	AttemptID string
	State     State
	Prompt    string
	SourceID  string

	// Result holds the generated bytes in Succeeded and AcceptPending.
	Result []byte

	// Failure and FailureKind are set in Failed.
	Failure     error
	FailureKind failure.Kind

	// SavedImageID is set in Committed.
	SavedImageID string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Busy reports whether the role rejects new attempts.
func (s Snapshot) Busy() bool {
	return s.State.Busy()
}
