// Package errcode implements papermake's error taxonomy (spec §7): a
// fixed set of stable Kind tokens, each carrying an optional detail
// payload, with no HTTP status code attached since the transport layer
// is external to this core.
package errcode

import (
	"fmt"
	"sync"
)

// Code uniquely identifies a registered error Kind.
type Code int

// Descriptor describes a single error condition.
type Descriptor struct {
	// Code is assigned by register.
	Code Code

	// Value is the stable kind token exposed to callers, e.g.
	// "InvalidReference" or "CompileFailed".
	Value string

	// Message is a short human-readable summary.
	Message string

	// Description further explains the circumstances of the error.
	Description string
}

// Descriptor returns d itself, satisfying Coder.
func (d Descriptor) Descriptor() Descriptor {
	return d
}

// Error returns the Message, so a bare Descriptor also satisfies the
// error interface.
func (d Descriptor) Error() string {
	return d.Message
}

// Coder is implemented by values that carry a registered error
// Descriptor, including a bare Descriptor and a constructed Error.
type Coder interface {
	error
	Descriptor() Descriptor
}

var (
	registerLock   sync.Mutex
	codeToDescriptor = map[Code]Descriptor{}
	valueToDescriptor = map[string]Descriptor{}
	nextCode       = 1000
)

// Register assigns a Code to descriptor and returns it as a Descriptor
// usable as a sentinel error value. Register panics if descriptor.Value
// is already registered: a duplicate registration is a programming
// error caught at package init time, not a runtime condition.
func Register(descriptor Descriptor) Descriptor {
	registerLock.Lock()
	defer registerLock.Unlock()

	if _, ok := valueToDescriptor[descriptor.Value]; ok {
		panic(fmt.Sprintf("errcode: value %q already registered", descriptor.Value))
	}

	descriptor.Code = Code(nextCode)
	nextCode++

	codeToDescriptor[descriptor.Code] = descriptor
	valueToDescriptor[descriptor.Value] = descriptor

	return descriptor
}

// Error pairs a registered Descriptor with an optional detail payload
// and wrapped cause, so the same Kind can be reported with call-site
// specifics while remaining comparable by Kind via errors.As.
type Error struct {
	Descriptor Descriptor
	Detail     any
	Cause      error
}

func (e Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Descriptor.Value, e.Cause)
	}
	return e.Descriptor.Message
}

func (e Error) Unwrap() error {
	return e.Cause
}

// Kind returns the stable error-kind token (spec §7), e.g.
// "StorageUnavailable".
func (e Error) Kind() string {
	return e.Descriptor.Value
}

// WithDetail returns a new Error with Detail set under the receiver's
// Descriptor and no Cause.
func (d Descriptor) WithDetail(detail any) Error {
	return Error{Descriptor: d, Detail: detail}
}

// WithCause returns a new Error wrapping cause under the receiver's
// Descriptor.
func (d Descriptor) WithCause(cause error) Error {
	return Error{Descriptor: d, Cause: cause}
}

// Is reports whether err carries the Kind token of d, so callers can
// write `errcode.ErrStorageUnavailable.Is(err)`. Error has no Is method,
// so errors.Is does not match an Error against a Descriptor.
func (d Descriptor) Is(err error) bool {
	var coder Coder
	if e, ok := err.(Error); ok {
		return e.Descriptor.Value == d.Value
	}
	if asCoder(err, &coder) {
		return coder.Descriptor().Value == d.Value
	}
	return false
}

func asCoder(err error, target *Coder) bool {
	if c, ok := err.(Coder); ok {
		*target = c
		return true
	}
	return false
}

// Kind returns the stable error-kind token carried by err, or "" if err
// does not carry a registered Descriptor.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(Error); ok {
		return e.Descriptor.Value
	}
	if c, ok := err.(Coder); ok {
		return c.Descriptor().Value
	}
	return ""
}
