package build

import (
	"github.com/melih/diskforge/internal/core/domain"
)

const (
	// Output directory inside the builder container.
	containerOutput = "/output/"

	// Where a blueprint is mounted inside the builder container.
	containerConfig = "/config.toml"

	LabelMarker   = "bootc.image.builder"
	LabelType     = "build.type"
	LabelLocation = "build.image.location"
	LabelBuildID  = "diskforge.build.id"
	LabelAttempt  = "diskforge.build.attempt"
)

// LaunchInput is what NewLaunchSpec needs to describe a builder container.
type LaunchInput struct {
	Name          string
	BuilderImage  string
	ImageRef      string
	Type          domain.ImageType
	Arch          string
	Folder        string
	ArtifactPath  string
	StoragePath   string
	BlueprintPath string
	BuildID       string
	AttemptID     string
}

// NewLaunchSpec describes the builder container for one build attempt.
//
// The container runs privileged with SELinux labeling disabled and shares the
// host container storage so the builder can read the source image without
// pulling it again.
func NewLaunchSpec(in LaunchInput) domain.LaunchSpec {
	binds := []string{
		in.Folder + ":" + containerOutput,
		in.StoragePath + ":" + in.StoragePath,
	}
	cmd := []string{
		in.ImageRef,
		"--type", string(in.Type),
		"--target-arch", in.Arch,
		"--output", containerOutput,
		"--local",
	}
	if in.BlueprintPath != "" {
		binds = append(binds, in.BlueprintPath+":"+containerConfig+":ro")
		cmd = append(cmd, "--config", containerConfig)
	}

	labels := map[string]string{
		LabelMarker:   "true",
		LabelType:     string(in.Type),
		LabelLocation: in.ArtifactPath,
	}
	if in.BuildID != "" {
		labels[LabelBuildID] = in.BuildID
	}
	if in.AttemptID != "" {
		labels[LabelAttempt] = in.AttemptID
	}

	return domain.LaunchSpec{
		Name:        in.Name,
		Image:       in.BuilderImage,
		ImageRef:    in.ImageRef,
		Privileged:  true,
		SecurityOpt: []string{"label=disable"},
		Binds:       binds,
		Labels:      labels,
		Cmd:         cmd,
	}
}
