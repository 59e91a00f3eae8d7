package domain

import "strings"

// Container represents a container known to an engine (Docker, Podman, etc.)
type Container struct {
	ID     string            `json:"id"`
	Names  []string          `json:"names"`
	Image  string            `json:"image"`
	State  string            `json:"state"` // running, exited, etc.
	Labels map[string]string `json:"labels,omitempty"`
}

// NormalizedNames returns the container names without the leading slash
// some engines prepend.
func (c Container) NormalizedNames() []string {
	names := make([]string, 0, len(c.Names))
	for _, n := range c.Names {
		names = append(names, strings.TrimPrefix(n, "/"))
	}
	return names
}

// LaunchSpec is everything an engine needs to create and start the builder
// container. It is built once per attempt and never modified.
type LaunchSpec struct {
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	ImageRef    string            `json:"imageRef"`
	Privileged  bool              `json:"privileged"`
	SecurityOpt []string          `json:"securityOpt"`
	Binds       []string          `json:"binds"`
	Labels      map[string]string `json:"labels"`
	Cmd         []string          `json:"cmd"`
}
