// Package errs defines the error kinds shared across the gateway (spec
// §7): a small, stable set of sentinel codes plus a wrapper that keeps
// the operation and underlying cause for logging and errors.Is/As.
package errs

import "fmt"

// Code identifies one of the error kinds from spec §7. It implements
// error directly so a bare Code can be returned, compared with
// errors.Is, or wrapped in an *E for extra context.
type Code string

func (c Code) Error() string { return string(c) }

const (
	// InvalidPacket: codec line rejects (§4.1, §8 property 2/3). Drop, log at debug.
	InvalidPacket Code = "invalid_packet"
	// CorruptState: an invariant from §3 is violated mid-run. Propagate; gateway stops.
	CorruptState Code = "corrupt_state"
	// MultipleController: a second controller observed while multiple controllers are not allowed (§3.1). The gateway logs it and drops the message.
	MultipleController Code = "multiple_controller"
	// ExpiredCallback: retries exhausted (§4.5 item 5, §8 property 6). Delivered to the callback.
	ExpiredCallback Code = "expired_callback"
	// BindingFailed: handshake timeout (§4.6). Delivered to the callback.
	BindingFailed Code = "binding_failed"
	// IOError: serial open/read/write failure. Open makes a single attempt; it is not retried.
	IOError Code = "io_error"
	// ConfigError: a single write larger than the whole duty-cycle budget. No allow-list/schema check raises it.
	ConfigError Code = "config_error"
)

// E wraps a Code with the operation that failed, a human message and an
// optional cause, grounded on jangala-dev-devicecode-go's errcode.E.
type E struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *E) Error() string {
	switch {
	case e.Msg != "" && e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Msg)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *E) Unwrap() error { return e.Err }

// Is supports errors.Is(err, errs.InvalidPacket) against a wrapped *E.
func (e *E) Is(target error) bool {
	if c, ok := target.(Code); ok {
		return e.Code == c
	}
	return false
}

// New builds a wrapped error for the given kind.
func New(code Code, op, msg string) *E {
	return &E{Code: code, Op: op, Msg: msg}
}

// Wrap attaches a code and operation to an underlying error.
func Wrap(code Code, op string, err error) *E {
	if err == nil {
		return nil
	}
	return &E{Code: code, Op: op, Err: err}
}

// Of extracts the Code from an error, defaulting to "" (unknown) when
// err is nil or doesn't carry one of our codes.
func Of(err error) Code {
	if err == nil {
		return ""
	}
	if c, ok := err.(Code); ok {
		return c
	}
	if e, ok := err.(*E); ok {
		return e.Code
	}
	return ""
}
