package ports

import (
	"context"

	"github.com/melih/diskforge/internal/core/domain"
)

// BuildHistory is the durable store of build records, keyed by build ID.
type BuildHistory interface {
	AddOrUpdate(ctx context.Context, rec domain.BuildRecord) error
	List(ctx context.Context) ([]domain.BuildRecord, error)
	// Get returns domain.ErrNotFound for unknown IDs.
	Get(ctx context.Context, id string) (domain.BuildRecord, error)
	Remove(ctx context.Context, id string) error
}
