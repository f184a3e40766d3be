// Package codes defines the wire-level error taxonomy shared by the
// broker, controller, and coordinator RPC surfaces.
package codes

// Code is one of the error codes listed on the wire contract.
type Code string

const (
	OK                  Code = "OK"
	InvalidArgument     Code = "INVALID_ARGUMENT"
	NotFound            Code = "NOT_FOUND"
	AlreadyExists       Code = "ALREADY_EXISTS"
	FailedPrecondition  Code = "FAILED_PRECONDITION"
	OutOfRange          Code = "OUT_OF_RANGE"
	OffsetOutOfRange    Code = "OFFSET_OUT_OF_RANGE"
	ResourceExhausted   Code = "RESOURCE_EXHAUSTED"
	Internal            Code = "INTERNAL"
	DataLoss            Code = "DATA_LOSS"
	Unavailable         Code = "UNAVAILABLE"
	Throttled           Code = "THROTTLED"
	IdempotentReplay    Code = "IDEMPOTENT_REPLAY"
	NotLeader           Code = "NOT_LEADER"
	ReplicationTimeout  Code = "REPLICATION_TIMEOUT"
)

// Retryable reports whether a client should retry an operation that
// failed with the given code, per the retryability contract.
func Retryable(c Code) bool {
	switch c {
	case Throttled, Unavailable, ReplicationTimeout, ResourceExhausted:
		return true
	default:
		return false
	}
}

// Error pairs a Code with a human-readable message, the shape every
// RPC response carries in its error_code/error_message fields.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// New builds an *Error for the given code and message.
func New(c Code, message string) *Error {
	return &Error{Code: c, Message: message}
}

// Of extracts the Code carried by err, defaulting to Internal for any
// error that was not constructed through this package.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else if errAs(err, &e) {
		// handled below
	}
	if e != nil {
		return e.Code
	}
	return Internal
}

// errAs is a tiny errors.As shim kept local so this package has no
// import cycle concerns with errors-wrapping callers.
func errAs(err error, target **Error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

