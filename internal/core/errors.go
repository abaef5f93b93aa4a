package core

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ResolutionError means an extension could not be located or built. The
// registry is left untouched.
type ResolutionError struct {
	Extension string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve extension %q: %v", e.Extension, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ActivationError means an extension was built but could not be registered.
// RollbackErr is set when restoring the previous version failed too; the
// extension is then unloaded.
type ActivationError struct {
	Extension   string
	Err         error
	RollbackErr error
}

func (e *ActivationError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("cannot activate extension %q: %v (rollback failed: %v, extension unloaded)",
			e.Extension, e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("cannot activate extension %q: %v", e.Extension, e.Err)
}

func (e *ActivationError) Unwrap() []error {
	if e.RollbackErr != nil {
		return []error{e.Err, e.RollbackErr}
	}
	return []error{e.Err}
}

// NotLoadedError is returned when unloading an extension that is absent.
type NotLoadedError struct {
	Extension string
}

func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("extension %q has not been loaded", e.Extension)
}

type CommandNotFoundError struct {
	Name string
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("Command %q is not found", e.Name)
}

// UserInputError is a bad argument or arity mismatch.
type UserInputError struct {
	Param  string
	Reason string
}

func (e *UserInputError) Error() string { return e.Reason }

// CheckFailureError is a failed precondition such as owner-only.
type CheckFailureError struct {
	Reason string
}

func (e *CheckFailureError) Error() string { return e.Reason }

// Checkf builds a CheckFailureError.
func Checkf(format string, args ...any) error {
	return &CheckFailureError{Reason: fmt.Sprintf(format, args...)}
}

// CooldownError reports a rate-limited invocation.
type CooldownError struct {
	Command    string
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("You are on cooldown. Try again in %.2fs", e.RetryAfter.Seconds())
}

// InvokeError wraps anything a handler failed with.
type InvokeError struct {
	Command string
	Err     error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("command %s raised an error: %v", e.Command, e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }

// PanicError is a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// IsTransportError reports whether err came from the connection rather than
// from command logic.
func IsTransportError(err error) bool {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// routingError reports whether a handler returned one of the errors that are
// surfaced as-is instead of being wrapped.
func routingError(err error) bool {
	var (
		input *UserInputError
		check *CheckFailureError
		cd    *CooldownError
		nf    *CommandNotFoundError
	)
	return errors.As(err, &input) || errors.As(err, &check) || errors.As(err, &cd) || errors.As(err, &nf)
}
