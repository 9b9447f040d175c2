package cgroup

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound indicates that no controller or hierarchy carries the requested name.
	ErrNotFound = errors.New("cgroup: no such controller")

	// ErrDisabled indicates that the controller is compiled in but disabled
	// (enabled column of /proc/cgroups is 0).
	ErrDisabled = errors.New("cgroup: controller disabled")

	// ErrUnmounted indicates that the controller is enabled but no hierarchy mounts it.
	ErrUnmounted = errors.New("cgroup: controller not mounted")

	// ErrUnsupported indicates that the kernel rejected an operation with
	// EOPNOTSUPP/ENOTSUP, typically because a feature is configured out.
	ErrUnsupported = errors.New("cgroup: operation not supported")

	// ErrRootOperation indicates a structural operation that is not allowed on a root group.
	ErrRootOperation = errors.New("cgroup: operation not allowed on root group")

	// ErrUnknownControlFile indicates a filter or write naming a file the controller does not have.
	ErrUnknownControlFile = errors.New("cgroup: unknown control file")

	// ErrUnsupportedEvent indicates an event target outside the supported set.
	ErrUnsupportedEvent = errors.New("cgroup: unsupported event target")

	// ErrExhausted indicates a second Wait on a single-shot event listener.
	ErrExhausted = errors.New("cgroup: event already delivered")

	// ErrNotEncodable indicates a value kind that cannot be written back to a control file.
	ErrNotEncodable = errors.New("cgroup: value cannot be encoded")
)

// UnavailableError reports a known controller that cannot be scanned.
// Reason is ErrDisabled or ErrUnmounted.
type UnavailableError struct {
	Controller string
	Reason     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Controller, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Reason }

// FormatError reports pseudo-file content that violates its grammar.
type FormatError struct {
	Path string
	Line string
	Err  error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("cgroup: malformed line %q", e.Line)
	if e.Path != "" {
		msg += " in " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErr(line string, err error) error {
	return &FormatError{Line: line, Err: err}
}
