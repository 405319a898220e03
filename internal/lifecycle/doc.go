// Package lifecycle drives generation and variation attempts from dispatch to
// an accept or discard decision.
//
// # State Machine
//
// Each role (generation, variation) has its own machine:
//
//	Idle -> Dispatched -> Succeeded | Failed
//	Succeeded -> AcceptPending -> Committed
//	AcceptPending -> Succeeded          (store failure)
//	Succeeded -> Discarded
//
// A role is busy while Dispatched or AcceptPending; starting another attempt
// then fails with ErrBusy. Starting from any finished state releases the
// previous attempt and its result.
//
// # Controller
//
//	ctrl := lifecycle.NewController(client, gallery,
//		lifecycle.WithAcceptPolicy(lifecycle.PolicyCreate),
//		lifecycle.WithLogger(logger),
//	)
//	snap, err := ctrl.Generate(ctx, "a red balloon")
//	snap, err = ctrl.Accept(ctx, lifecycle.RoleGeneration)
//
// Start* return at once; Await blocks until the remote call finishes.
// Remote calls run detached from the caller's cancellation and are bounded by
// the client's own timeout. Results are never persisted without Accept.
//
// # Accept Policy
//
// Accepting a variation either creates a new gallery image carrying the
// source's prompt (PolicyCreate) or replaces the bytes of the gallery image it
// came from (PolicyReplace).
//
// # Observing State
//
// Snapshot and Busy read the current state. Subscribe streams the transitions
// of a role through a Broadcaster, starting with the last one published, so a
// watcher that subscribes after Start still sees where the attempt is.
// Subscribers that fall more than 64 snapshots behind lose the overflow.
package lifecycle
