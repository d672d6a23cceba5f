package main

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies failures by the exit path they take.
type Kind int

const (
	KindConfig Kind = iota + 1 // bad flags, fails before any measurement
	KindBind                   // listen/accept failure
	KindRead                   // read failure other than end of stream
	KindWrite                  // pass-through or report write failure
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindBind:
		return "bind"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by run.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error { return e.Err }

func configError(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Op: fmt.Sprintf(format, args...)}
}

func bindError(op string, err error) *Error {
	return &Error{Kind: KindBind, Op: op, Err: err}
}

func readError(err error) *Error {
	return &Error{Kind: KindRead, Op: "error while reading into buffer", Err: err}
}

func writeError(op string, err error) *Error {
	return &Error{Kind: KindWrite, Op: op, Err: err}
}

// kindOf returns the Kind of err, or 0 if err is not an *Error.
func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

// exitCode maps an error returned by run to a process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case kindOf(err) == KindConfig:
		return exitUsage
	default:
		return exitFailure
	}
}
