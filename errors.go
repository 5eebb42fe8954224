package spatio

import "fmt"

// Kind classifies an Error so callers can branch with errors.As without
// string-matching messages, per spec §7.
type Kind int

const (
	// InvalidArgument: malformed input — non-finite coordinate,
	// longitude/latitude out of range, empty object id or namespace,
	// negative radius, inverted bounding box, k=0, limit<0.
	InvalidArgument Kind = iota
	// ObjectNotFound: relative query or get on a missing/expired id.
	ObjectNotFound
	// IoError: underlying filesystem failure on flush, sync, or log scan.
	IoError
	// CorruptLog: unrecoverable mid-log framing or CRC failure at open.
	CorruptLog
	// AlreadyOpen: another process holds the log file.
	AlreadyOpen
	// ResourceExhausted: write buffer push rejected due to backpressure.
	ResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case ObjectNotFound:
		return "object_not_found"
	case IoError:
		return "io_error"
	case CorruptLog:
		return "corrupt_log"
	case AlreadyOpen:
		return "already_open"
	case ResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// Error is the engine's public error type. Op names the failing operation
// (e.g. "Upsert", "QueryRadius") so logs and callers can tell which call
// failed without parsing the message.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spatio: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("spatio: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func invalidArgument(op string, format string, args ...interface{}) *Error {
	return newError(InvalidArgument, op, fmt.Errorf(format, args...))
}
