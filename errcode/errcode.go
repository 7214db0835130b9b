package errcode

import "errors"

// Code is a stable, machine-readable error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Busy          Code = "busy"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"
	Timeout       Code = "timeout"

	// Resource ownership
	UnknownPin   Code = "unknown_pin"
	PinInUse     Code = "pin_in_use"
	TimerInUse   Code = "timer_in_use"
	BusInUse     Code = "bus_in_use"
	DisplayInUse Code = "display_in_use"

	OutOfRange Code = "out_of_range"

	// Bus protocol
	Transport Code = "transport"
	NACK      Code = "nack"

	// Filesystem
	ReadOnly Code = "read_only"
	NotFound Code = "not_found"
	NoSpace  Code = "no_space"

	// Contract misuse
	Deinitialized  Code = "deinitialized"
	ForeignUnlock  Code = "foreign_unlock"
	NotLocked      Code = "not_locked"
	FixedFrequency Code = "fixed_frequency"
	NotConfigured  Code = "not_configured"
	InGroup        Code = "in_group"
	BootOnly       Code = "boot_only"

	Error Code = "error" // generic fallback
)

// Class groups codes by how a caller is expected to react.
type Class uint8

const (
	ClassNone Class = iota
	ClassResourceInUse
	ClassUnsupported
	ClassOutOfRange
	ClassTimeout
	ClassTransport
	ClassFilesystem
	ClassProgramming
	ClassOther
)

var classNames = [...]string{
	ClassNone:          "none",
	ClassResourceInUse: "resource_in_use",
	ClassUnsupported:   "unsupported",
	ClassOutOfRange:    "out_of_range",
	ClassTimeout:       "timeout",
	ClassTransport:     "transport",
	ClassFilesystem:    "filesystem",
	ClassProgramming:   "programming",
	ClassOther:         "other",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "other"
}

// Class reports the taxonomy class of c.
func (c Code) Class() Class {
	switch c {
	case OK:
		return ClassNone
	case PinInUse, TimerInUse, BusInUse, DisplayInUse, Busy:
		return ClassResourceInUse
	case Unsupported, UnknownPin:
		return ClassUnsupported
	case OutOfRange, InvalidParams:
		return ClassOutOfRange
	case Timeout:
		return ClassTimeout
	case Transport, NACK:
		return ClassTransport
	case ReadOnly, NotFound, NoSpace:
		return ClassFilesystem
	case Deinitialized, ForeignUnlock, NotLocked, FixedFrequency, NotConfigured, InGroup, BootOnly:
		return ClassProgramming
	}
	return ClassOther
}

// E keeps an operation name, a short message and an optional cause
// alongside a code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E without a cause.
func New(c Code, op, msg string) error { return &E{C: c, Op: op, Msg: msg} }

// Wrap attaches a code and operation to cause. A nil cause yields nil.
func Wrap(c Code, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: cause}
}

// Of extracts a Code from an error chain, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var cd coder
	if errors.As(err, &cd) {
		return cd.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}

// ClassOf is shorthand for Of(err).Class().
func ClassOf(err error) Class { return Of(err).Class() }

// Is reports whether err carries code c anywhere in its chain.
func Is(err error, c Code) bool { return Of(err) == c }
