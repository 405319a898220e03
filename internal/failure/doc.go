// Package failure defines the typed failures shared by the generation client,
// the gallery store and the request lifecycle controller.
//
// # Kinds
//
//   - InvalidInput: caller error, never retried automatically
//   - TransportFailure, ServiceFailure, DecodeFailure: remote call errors,
//     recoverable only by starting a new attempt
//   - PersistFailure: store commit error, recoverable by accepting again
//   - NotFound: referenced record absent
//   - InvalidTransition: state machine method called from the wrong state
//
// Match kinds with errors.Is against the package sentinels:
//
//	if errors.Is(err, failure.ErrPersistFailure) {
//		// offer "retry accept"
//	}
//
// or extract the kind with KindOf.
package failure
