package ports

import (
	"context"

	"github.com/melih/diskforge/internal/core/domain"
)

// Notifier is the user-facing message surface of a caller (CLI, API).
type Notifier interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	// Confirm asks a yes/no question and reports whether the answer was yes.
	Confirm(ctx context.Context, msg string) (bool, error)
}

// Progress receives coarse progress increments. A negative delta means the
// task is over.
type Progress interface {
	Increment(delta int)
}

// StatusObserver is told about every status transition persisted for a build.
type StatusObserver interface {
	StatusChanged(ctx context.Context, rec domain.BuildRecord)
}

// BlueprintSource makes a builder customization file available on the host.
// The returned cleanup releases whatever was fetched.
type BlueprintSource interface {
	Fetch(ctx context.Context, bp domain.Blueprint) (path string, cleanup func(), err error)
}
