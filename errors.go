package activex

import (
	"errors"
	"fmt"
)

// Error kinds. An *Error matches its kind and its cause with errors.Is.
var (
	ErrMemberNotFound   = errors.New("member not found")
	ErrInvocation       = errors.New("invocation failed")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrActivation       = errors.New("activation failed")
	ErrInvalidState     = errors.New("object is released")

	// ErrInitialized is returned by a second Initialize.
	ErrInitialized = errors.New("activex: already initialized")
)

// Operation names carried by Error.Op.
const (
	OpPropertyFind   = "DispPropertyFind"
	OpPropertyGet    = "DispPropertyGet"
	OpPropertyPut    = "DispPropertyPut"
	OpInvoke         = "DispInvoke"
	OpValueOf        = "DispValueOf"
	OpToString       = "DispToString"
	OpCreateInstance = "CreateInstance"
	OpIsEmpty        = "DispIsEmpty"
)

// Error is a failed operation on an object.
type Error struct {
	Op   string // one of the Op* names
	Tag  string // member or class involved, may be empty
	Kind error  // one of the Err* kinds
	Err  error  // transport error, usually an oleaut.HRESULT or *oleaut.Exception
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Tag != "" {
		msg = fmt.Sprintf("%s %q", e.Op, e.Tag)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op, tag string, kind, err error) *Error {
	return &Error{Op: op, Tag: tag, Kind: kind, Err: err}
}
