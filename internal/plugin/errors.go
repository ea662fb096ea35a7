package plugin

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Kind classifies where in the lifecycle a plugin error occurred.
type Kind int

const (
	KindDiscovery Kind = iota + 1
	KindConstruction
	KindLoad
	KindProcess
	KindUnload
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindDiscovery:
		return "discovery"
	case KindConstruction:
		return "construction"
	case KindLoad:
		return "load"
	case KindProcess:
		return "process"
	case KindUnload:
		return "unload"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinel errors for the plugin package.
var (
	ErrTimeout             = errors.New("timeout")
	ErrShuttingDown        = errors.New("host is shutting down")
	ErrNotStarted          = errors.New("host not started")
	ErrAlreadyStarted      = errors.New("host already started")
	ErrNoPlugins           = errors.New("no plugins loaded")
	ErrMissingProcessEvent = errors.New("plugin does not provide process_event")
	ErrNoResolver          = errors.New("no resolver for plugin file type")
)

// Error is a plugin failure contained at the boundary where it happened.
type Error struct {
	Kind   Kind
	Plugin string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error in plugin %s: %v", e.Kind, e.Plugin, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, plugin string, err error) *Error {
	return &Error{Kind: kind, Plugin: plugin, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// PanicError is returned when a plugin operation panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// safeCall runs fn and converts a panic into a *PanicError.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
