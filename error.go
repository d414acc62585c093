package sdbgo

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is the one error kind that propagates from every fallible
// operation in this package: a descriptive message optionally carrying
// the OS errno that caused it. Recoverable conditions (slot exhaustion,
// duplicate breakpoint address, bad register name, out-of-range memory
// request, unmapped address conversion) and unrecoverable ones (failed
// fork/exec/waitpid, malformed ELF) both surface as *Error; callers
// distinguish them by context (an unrecoverable one always accompanies a
// transition to StateTerminated or a failed constructor).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error { return e.Err }

// Errno returns the wrapped OS errno, if any.
func (e *Error) Errno() (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno, true
	}
	return 0, false
}

func newError(op string, err error) *Error {
	if err == nil {
		return &Error{Op: op}
	}
	return &Error{Op: op, Err: err}
}

func wrapf(err error, format string, args ...any) *Error {
	return newError(fmt.Sprintf(format, args...), err)
}

func errAlreadyExists(kind string, id uint64) error {
	return fmt.Errorf("%s %d already present", kind, id)
}

func errAddressTaken(addr VirtAddr) error {
	return fmt.Errorf("address %s already has a breakpoint site", addr)
}

func errNoSuchID(id uint64) error {
	return fmt.Errorf("no stoppoint with id %d", id)
}

