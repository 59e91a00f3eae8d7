package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRuntime  = errors.New("container runtime error")
	ErrNotFound = errors.New("build not found")
)

// ValidationError reports the first required request field that is missing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PrivilegeError is returned when the target engine does not run rootful.
type PrivilegeError struct {
	EngineID string
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("engine %q must run in rootful mode to build disk images", e.EngineID)
}

// InvalidFormatError is returned for an image type with no known artifact.
type InvalidFormatError struct {
	Type string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid image format: %q", e.Type)
}

// RuntimeError wraps a failed call to the container runtime.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() []error {
	return []error{ErrRuntime, e.Err}
}

// BuildError is the terminal failure of a build. LogPath points at the
// build log written next to the artifact.
type BuildError struct {
	Message string
	LogPath string
}

func (e *BuildError) Error() string {
	if e.LogPath == "" {
		return e.Message
	}
	return fmt.Sprintf("%s See %s for details.", e.Message, e.LogPath)
}
