package build

import (
	"context"
	"strconv"
	"strings"
)

// UniqueName returns desired, or desired with the first free numeric suffix
// (-2, -3, ...) when desired is already taken.
func UniqueName(desired string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		taken[strings.TrimPrefix(n, "/")] = struct{}{}
	}

	if _, ok := taken[desired]; !ok {
		return desired
	}
	for i := 2; ; i++ {
		candidate := desired + "-" + strconv.Itoa(i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// Resolves a container name that is free on the engine. If the engine can't
// be listed the desired name is used as is.
func (s *Service) resolveName(ctx context.Context, engineID, desired string) string {
	containers, err := s.runtime.ListContainers(ctx, engineID)
	if err != nil {
		s.logger.Warn("failed to list containers, assuming no name collisions",
			"engine", engineID, "error", err)
		return desired
	}

	var existing []string
	for _, c := range containers {
		existing = append(existing, c.NormalizedNames()...)
	}
	return UniqueName(desired, existing)
}
