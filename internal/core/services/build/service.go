package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/melih/diskforge/internal/core/domain"
	"github.com/melih/diskforge/internal/core/ports"
)

const (
	DefaultBuilderImage = "quay.io/centos-bootc/bootc-image-builder:latest"
	DefaultStoragePath  = "/var/lib/containers/storage"
)

// Service runs disk image builds against a container runtime and records
// their progress in a build history.
type Service struct {
	runtime      ports.ContainerRuntime
	history      ports.BuildHistory
	blueprints   ports.BlueprintSource
	observers    []ports.StatusObserver
	logger       *slog.Logger
	builderImage string
	storagePath  string
	now          func() time.Time

	mu      sync.Mutex
	running map[string]*attempt // In-flight builds by build ID.
}

// An in-flight build that can be cancelled.
type attempt struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBuilderImage overrides the bootc-image-builder image reference.
func WithBuilderImage(ref string) Option {
	return func(s *Service) {
		if ref != "" {
			s.builderImage = ref
		}
	}
}

// WithStoragePath overrides the host container storage shared with the
// builder.
func WithStoragePath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.storagePath = path
		}
	}
}

// WithBlueprintSource enables builds that carry a blueprint.
func WithBlueprintSource(src ports.BlueprintSource) Option {
	return func(s *Service) { s.blueprints = src }
}

// WithObservers registers observers notified on every persisted status.
func WithObservers(observers ...ports.StatusObserver) Option {
	return func(s *Service) { s.observers = append(s.observers, observers...) }
}

// NewService creates a build service on top of a container runtime and a
// build history.
func NewService(runtime ports.ContainerRuntime, history ports.BuildHistory, opts ...Option) *Service {
	s := &Service{
		runtime:      runtime,
		history:      history,
		logger:       slog.Default(),
		builderImage: DefaultBuilderImage,
		storagePath:  DefaultStoragePath,
		now:          time.Now,
		running:      make(map[string]*attempt),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Feedback carries the caller's user-facing collaborators for one build.
// Nil fields are replaced by no-ops.
type Feedback struct {
	Notifier ports.Notifier
	Progress ports.Progress
}

// Result describes how a build ended when it did not fail.
type Result struct {
	ID           string
	ArtifactPath string
	LogPath      string
	Skipped      bool // The artifact existed and overwriting it was declined.
	Cancelled    bool // The build was cancelled through Cancel or its context.
}

// Build runs one disk image build to completion.
//
// Invalid requests fail with a domain error before the engine is touched.
// Once the build record exists, failures are reported as a
// *domain.BuildError after the builder container has been removed. A build
// is cancellable through Cancel or ctx as soon as the request is valid; it
// then returns a Result with Cancelled set and a nil error.
func (s *Service) Build(ctx context.Context, req domain.BuildRequest, fb Feedback) (Result, error) {
	fb = fb.withDefaults()

	if err := Validate(req); err != nil {
		return Result{}, err
	}

	// Registered before anything blocks so Cancel reaches the build from here on.
	id := req.Identity()
	runCtx, a := s.track(ctx, id)
	defer s.untrack(id, a)

	if err := s.checkPrivileged(runCtx, req.EngineID); err != nil {
		if s.interrupted(ctx, a) {
			return Result{ID: id, Cancelled: true}, nil
		}
		return Result{}, err
	}

	artifact, err := domain.ArtifactPath(req.Folder, req.Type)
	if err != nil {
		return Result{}, err
	}

	rec := domain.NewRecord(req, artifact, s.now())
	logger := s.logger.With("build", rec.ID, "engine", rec.EngineID)

	if _, err := os.Stat(artifact); err == nil {
		overwrite, err := fb.Notifier.Confirm(runCtx, fmt.Sprintf("File %s already exists, do you want to overwrite it?", artifact))
		if err != nil && !s.interrupted(ctx, a) {
			return Result{}, fmt.Errorf("failed to confirm overwrite: %w", err)
		}
		if err == nil && !overwrite {
			logger.Info("build skipped, artifact exists", "artifact", artifact)
			return Result{ID: rec.ID, ArtifactPath: artifact, LogPath: rec.LogPath, Skipped: true}, nil
		}
	}
	if s.interrupted(ctx, a) {
		logger.Info("build cancelled before start")
		return Result{ID: rec.ID, ArtifactPath: artifact, LogPath: rec.LogPath, Cancelled: true}, nil
	}

	defer fb.Progress.Increment(progressCompleted)

	s.record(ctx, rec)

	logger.Info("starting disk image build", "image", rec.ImageRef(), "type", rec.Type, "arch", rec.Arch)

	final, cancelled, err := s.run(runCtx, a, rec, fb.Progress, logger)
	if err != nil && s.interrupted(ctx, a) {
		cancelled, err = true, nil
	}

	result := Result{ID: final.ID, ArtifactPath: final.ArtifactPath, LogPath: final.LogPath}
	if cancelled {
		logger.Info("build cancelled", "container", final.ContainerID)
		result.Cancelled = true
		return result, nil
	}

	// The caller's context may be gone by now; the outcome is still recorded.
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		msg := withTerminalPunctuation(err.Error())
		s.record(persistCtx, final.WithError(msg, s.now()))
		buildErr := &domain.BuildError{Message: msg, LogPath: final.LogPath}
		logger.Error("build failed", "error", err)
		fb.Notifier.Error(fmt.Sprintf("Error while building %s: %s", final.ImageRef(), buildErr.Error()))
		return result, buildErr
	}

	s.record(persistCtx, final.WithStatus(domain.StatusSuccess, s.now()))
	logger.Info("build succeeded", "artifact", final.ArtifactPath)
	fb.Notifier.Info(fmt.Sprintf("Success! Your bootc disk image has been built: %s", final.ArtifactPath))
	return result, nil
}

// Runs the container part of a build. The returned record is the last
// snapshot written to history; cancelled reports a silent cancellation.
func (s *Service) run(ctx context.Context, a *attempt, rec domain.BuildRecord, progress ports.Progress, logger *slog.Logger) (domain.BuildRecord, bool, error) {
	name := s.resolveName(ctx, rec.EngineID, rec.ContainerBaseName())
	rec = rec.WithContainer(name, "", s.now())

	// Removes the builder and its volumes once, whatever happens below.
	defer s.cleanup(context.WithoutCancel(ctx), rec.EngineID, name, logger)

	var blueprintPath string
	if rec.Blueprint != nil {
		if s.blueprints == nil {
			return rec, false, errors.New("blueprint given but no blueprint source is configured")
		}
		path, release, err := s.blueprints.Fetch(ctx, *rec.Blueprint)
		if err != nil {
			return rec, false, fmt.Errorf("failed to fetch blueprint from %s: %w", rec.Blueprint.Repo, err)
		}
		defer release()
		blueprintPath = path
	}

	spec := NewLaunchSpec(LaunchInput{
		Name:          name,
		BuilderImage:  s.builderImage,
		ImageRef:      rec.ImageRef(),
		Type:          rec.Type,
		Arch:          rec.Arch,
		Folder:        rec.Folder,
		ArtifactPath:  rec.ArtifactPath,
		StoragePath:   s.storagePath,
		BlueprintPath: blueprintPath,
		BuildID:       rec.ID,
		AttemptID:     rec.AttemptID,
	})

	if err := os.MkdirAll(rec.Folder, 0o755); err != nil {
		return rec, false, fmt.Errorf("failed to create output folder %s: %w", rec.Folder, err)
	}

	buildLog := openBuildLog(logger, rec, spec)
	defer buildLog.Close()

	if err := s.runtime.PullImage(ctx, rec.EngineID, spec.Image); err != nil {
		return rec, false, &domain.RuntimeError{Op: "pull image " + spec.Image, Err: err}
	}
	progress.Increment(progressPulled)

	if spec.Name == "" {
		return rec, false, errors.New("no container name to remove")
	}
	if err := s.runtime.RemoveContainerIfExists(ctx, rec.EngineID, spec.Name); err != nil {
		return rec, false, &domain.RuntimeError{Op: "remove container " + spec.Name, Err: err}
	}
	progress.Increment(progressCleaned)

	rec = rec.WithStatus(domain.StatusRunning, s.now())
	s.record(ctx, rec)

	id, err := s.runtime.CreateAndStart(ctx, rec.EngineID, spec)
	if err != nil {
		return rec, false, &domain.RuntimeError{Op: "create container " + spec.Name, Err: err}
	}
	progress.Increment(progressStarted)

	rec = rec.WithContainer(spec.Name, id, s.now())
	s.record(ctx, rec)
	progress.Increment(progressRecorded)
	logger.Info("builder container started", "container", id, "name", spec.Name)

	if err := s.follow(ctx, rec, buildLog, progress, logger); err != nil {
		if s.cancelledExternally(context.WithoutCancel(ctx), a, id, logger) {
			return rec, true, nil
		}
		return rec, false, &domain.RuntimeError{Op: "wait for container " + spec.Name, Err: err}
	}
	return rec, false, nil
}

// Streams the builder output while waiting for it to exit. The stream is
// stopped if waiting fails so it can't outlive the build.
func (s *Service) follow(ctx context.Context, rec domain.BuildRecord, buildLog *buildLog, progress ports.Progress, logger *slog.Logger) error {
	logCtx, stopLogs := context.WithCancel(ctx)
	defer stopLogs()

	var g errgroup.Group
	g.Go(func() error {
		err := s.runtime.Logs(logCtx, rec.EngineID, rec.ContainerID, func(_, data string) {
			buildLog.Write(data)
			if delta, ok := ProgressFor(data); ok {
				progress.Increment(delta)
			}
		})
		if err != nil && logCtx.Err() == nil {
			logger.Warn("builder log stream failed", "container", rec.ContainerID, "error", err)
		}
		return nil
	})

	err := s.runtime.WaitForExit(ctx, rec.EngineID, rec.ContainerID)
	if err != nil {
		stopLogs()
	}
	_ = g.Wait()
	return err
}

// Reports whether the build was cancelled through Cancel or through the
// caller's context.
func (s *Service) interrupted(ctx context.Context, a *attempt) bool {
	return a.cancelled.Load() || ctx.Err() != nil
}

// Reports whether a failed wait is the result of the build being cancelled,
// either explicitly or by its record being removed from history.
func (s *Service) cancelledExternally(ctx context.Context, a *attempt, containerID string, logger *slog.Logger) bool {
	if a.cancelled.Load() {
		return true
	}

	records, err := s.history.List(ctx)
	if err != nil {
		logger.Warn("failed to read build history", "error", err)
		return false
	}
	for _, r := range records {
		if r.ContainerID == containerID {
			return false
		}
	}
	return true
}

func (s *Service) cleanup(ctx context.Context, engineID, name string, logger *slog.Logger) {
	if err := s.runtime.RemoveContainerAndVolumes(ctx, engineID, name); err != nil {
		logger.Warn("failed to remove builder container", "name", name, "error", err)
		return
	}
	logger.Debug("builder container removed", "name", name)
}

// Persists rec and tells the observers. Failing to persist never changes the
// outcome of a build.
func (s *Service) record(ctx context.Context, rec domain.BuildRecord) {
	if err := s.history.AddOrUpdate(ctx, rec); err != nil {
		s.logger.Error("failed to record build status",
			"build", rec.ID, "status", rec.Status, "error", err)
	}
	for _, o := range s.observers {
		o.StatusChanged(ctx, rec)
	}
}

// Cancel stops a running build. The builder container is removed and the
// build ends without reporting an error.
func (s *Service) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	a, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running build %s: %w", id, domain.ErrNotFound)
	}

	a.cancelled.Store(true)
	a.cancel()
	return nil
}

// Running reports whether a build with the given ID is in flight.
func (s *Service) Running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

func (s *Service) track(ctx context.Context, id string) (context.Context, *attempt) {
	ctx, cancel := context.WithCancel(ctx)
	a := &attempt{cancel: cancel}

	s.mu.Lock()
	s.running[id] = a
	s.mu.Unlock()
	return ctx, a
}

func (s *Service) untrack(id string, a *attempt) {
	a.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] == a {
		delete(s.running, id)
	}
}

func withTerminalPunctuation(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "Unknown error."
	}
	switch msg[len(msg)-1] {
	case '.', '!', '?':
		return msg
	}
	return msg + "."
}

func (fb Feedback) withDefaults() Feedback {
	if fb.Notifier == nil {
		fb.Notifier = nopNotifier{}
	}
	if fb.Progress == nil {
		fb.Progress = nopProgress{}
	}
	return fb
}

// Declines every question, so an existing artifact is never overwritten
// without a caller that can ask.
type nopNotifier struct{}

func (nopNotifier) Info(string)                                   {}
func (nopNotifier) Warn(string)                                   {}
func (nopNotifier) Error(string)                                  {}
func (nopNotifier) Confirm(context.Context, string) (bool, error) { return false, nil }

type nopProgress struct{}

func (nopProgress) Increment(int) {}
