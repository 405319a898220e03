// ABOUTME: Typed failure taxonomy for generation, variation and gallery operations
// ABOUTME: Errors carry a Kind and the operation that produced them; match with errors.Is

package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller can recover from it.
type Kind int

const (
	Unknown Kind = iota
	InvalidInput
	TransportFailure
	ServiceFailure
	DecodeFailure
	PersistFailure
	NotFound
	InvalidTransition
)

var kindNames = map[Kind]string{
	Unknown:           "unknown",
	InvalidInput:      "invalid_input",
	TransportFailure:  "transport_failure",
	ServiceFailure:    "service_failure",
	DecodeFailure:     "decode_failure",
	PersistFailure:    "persist_failure",
	NotFound:          "not_found",
	InvalidTransition: "invalid_transition",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is matching. They match any *Error of the same Kind.
var (
	ErrInvalidInput      = &Error{Kind: InvalidInput}
	ErrTransportFailure  = &Error{Kind: TransportFailure}
	ErrServiceFailure    = &Error{Kind: ServiceFailure}
	ErrDecodeFailure     = &Error{Kind: DecodeFailure}
	ErrPersistFailure    = &Error{Kind: PersistFailure}
	ErrNotFound          = &Error{Kind: NotFound}
	ErrInvalidTransition = &Error{Kind: InvalidTransition}
)

// Error is a failure of a given Kind raised by operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err as a failure of the given kind. A nil err is allowed.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a failure whose cause is a formatted message.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel (no Op, no cause) of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the Kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Recovery describes what the caller has to do to recover from a failure kind.
func Recovery(kind Kind) string {
	switch kind {
	case InvalidInput:
		return "fix the input and try again"
	case TransportFailure, ServiceFailure, DecodeFailure:
		return "start a new attempt"
	case PersistFailure:
		return "accept again; the result is still held"
	case NotFound:
		return "the record no longer exists"
	case InvalidTransition:
		return "the attempt is not in a state that allows this action"
	default:
		return "unexpected error"
	}
}
