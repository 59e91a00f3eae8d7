package build

import (
	"context"

	"github.com/melih/diskforge/internal/core/domain"
)

// Validate checks that every required field of req is set. Fields are
// checked in a fixed order and only the first missing one is reported.
func Validate(req domain.BuildRequest) error {
	fields := []struct {
		name  string
		value string
		msg   string
	}{
		{"name", req.Name, "Bootc image name is required."},
		{"tag", req.Tag, "Bootc image tag is required."},
		{"type", string(req.Type), "Bootc image type is required."},
		{"engineId", req.EngineID, "Container engine is required."},
		{"folder", req.Folder, "Output folder is required."},
		{"arch", req.Arch, "Target architecture is required."},
	}
	for _, f := range fields {
		if f.value == "" {
			return &domain.ValidationError{Field: f.name, Message: f.msg}
		}
	}
	return nil
}

// Fails unless the engine runs rootful; disk image builds need loop devices
// and real root inside the builder.
func (s *Service) checkPrivileged(ctx context.Context, engineID string) error {
	rootful, err := s.runtime.IsRootful(ctx, engineID)
	if err != nil {
		s.logger.Warn("failed to query engine privileges", "engine", engineID, "error", err)
		return &domain.PrivilegeError{EngineID: engineID}
	}
	if !rootful {
		return &domain.PrivilegeError{EngineID: engineID}
	}
	return nil
}
