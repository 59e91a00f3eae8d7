package domain

import (
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BuildLogName is the file the builder output is mirrored to, inside the
// output folder.
const BuildLogName = "image-build.log"

// Namespace for deterministic build identities.
var buildNamespace = uuid.MustParse("5b0c9a1e-6c3f-4f7e-9d0a-2f1e8b7c4d21")

// Status is the lifecycle state of a build record.
type Status string

const (
	StatusCreating Status = "creating"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
)

// Terminal reports whether s ends a build.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Blueprint points at a builder customization file (config.toml) kept in a
// git repository.
type Blueprint struct {
	Repo string `json:"repo" yaml:"repo"`
	Ref  string `json:"ref,omitempty" yaml:"ref"`
	Path string `json:"path,omitempty" yaml:"path"`
}

// BuildRequest describes a disk image to build from a bootable container image.
type BuildRequest struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Tag       string     `json:"tag"`
	Type      ImageType  `json:"type"`
	EngineID  string     `json:"engineId"`
	Folder    string     `json:"folder"`
	Arch      string     `json:"arch"`
	Blueprint *Blueprint `json:"blueprint,omitempty"`
}

// ImageRef is the source image reference, name:tag.
func (r BuildRequest) ImageRef() string {
	return r.Name + ":" + r.Tag
}

// Identity returns the build identity used as the history key. Without an
// explicit ID the identity is derived from the request, so rebuilding the
// same request overwrites its previous record.
func (r BuildRequest) Identity() string {
	if r.ID != "" {
		return r.ID
	}
	key := strings.Join([]string{r.Name, r.Tag, string(r.Type), r.Arch, filepath.Clean(r.Folder)}, "|")
	return uuid.NewSHA1(buildNamespace, []byte(key)).String()
}

// ContainerBaseName is the desired builder container name before collision
// resolution.
func (r BuildRequest) ContainerBaseName() string {
	base := path.Base(r.Name)
	if i := strings.LastIndex(base, "@"); i > 0 {
		base = base[:i]
	}
	return sanitizeName(base + "-" + r.Tag + "-" + string(r.Type))
}

// Engines accept [a-zA-Z0-9][a-zA-Z0-9_.-]*.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '.' || r == '-':
			if b.Len() > 0 {
				b.WriteRune(r)
			}
		default:
			if b.Len() > 0 {
				b.WriteRune('-')
			}
		}
	}
	if b.Len() == 0 {
		return "bootc-build"
	}
	return b.String()
}

// BuildRecord is a snapshot of a build as stored in history. Records are
// values: every transition produces a new snapshot.
type BuildRecord struct {
	BuildRequest
	Status        Status    `json:"status"`
	AttemptID     string    `json:"attemptId,omitempty"`
	ContainerID   string    `json:"buildContainerId,omitempty"`
	ContainerName string    `json:"containerName,omitempty"`
	ArtifactPath  string    `json:"artifactPath,omitempty"`
	LogPath       string    `json:"logPath,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewRecord starts a record in the creating state for a new attempt.
func NewRecord(req BuildRequest, artifactPath string, now time.Time) BuildRecord {
	req.ID = req.Identity()
	return BuildRecord{
		BuildRequest: req,
		Status:       StatusCreating,
		AttemptID:    uuid.NewString(),
		ArtifactPath: artifactPath,
		LogPath:      filepath.Join(req.Folder, BuildLogName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// WithStatus returns a copy of r moved to status s.
func (r BuildRecord) WithStatus(s Status, now time.Time) BuildRecord {
	r.Status = s
	r.UpdatedAt = now
	return r
}

// WithContainer returns a copy of r bound to the builder container.
func (r BuildRecord) WithContainer(name, id string, now time.Time) BuildRecord {
	r.ContainerName = name
	r.ContainerID = id
	r.UpdatedAt = now
	return r
}

// WithError returns a copy of r in the error state carrying msg.
func (r BuildRecord) WithError(msg string, now time.Time) BuildRecord {
	r.Status = StatusError
	r.Error = msg
	r.UpdatedAt = now
	return r
}
