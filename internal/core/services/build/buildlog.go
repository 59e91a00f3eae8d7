package build

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/melih/diskforge/internal/core/domain"
)

// buildLog mirrors the builder output to <folder>/image-build.log. The log is
// a debugging aid, so failing to write it never fails the build.
type buildLog struct {
	path   string
	w      io.WriteCloser
	logger *slog.Logger
	failed bool
}

// Creates the build log, replacing any previous one, and writes a summary of
// the build followed by the launch spec.
func openBuildLog(logger *slog.Logger, rec domain.BuildRecord, spec domain.LaunchSpec) *buildLog {
	l := &buildLog{path: rec.LogPath, logger: logger}

	f, err := os.OpenFile(rec.LogPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warn("failed to create build log", "path", rec.LogPath, "error", err)
		l.failed = true
		return l
	}
	l.w = f

	specJSON, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		specJSON = []byte(fmt.Sprintf("%+v", spec))
	}

	header := fmt.Sprintf("Build started: %s\nBuild ID: %s\nImage: %s\nType: %s\nArchitecture: %s\nFolder: %s\nArtifact: %s\n\nContainer configuration:\n%s\n\n",
		time.Now().UTC().Format(time.RFC3339),
		rec.ID,
		rec.ImageRef(),
		rec.Type,
		rec.Arch,
		rec.Folder,
		rec.ArtifactPath,
		specJSON,
	)
	l.Write(header)
	return l
}

// Write appends data to the log. After the first failure further writes are
// dropped.
func (l *buildLog) Write(data string) {
	if l.failed || l.w == nil {
		return
	}
	if _, err := io.WriteString(l.w, data); err != nil {
		l.logger.Warn("failed to write build log", "path", l.path, "error", err)
		l.failed = true
	}
}

func (l *buildLog) Close() {
	if l.w == nil {
		return
	}
	if err := l.w.Close(); err != nil {
		l.logger.Warn("failed to close build log", "path", l.path, "error", err)
	}
}
