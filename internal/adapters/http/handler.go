package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/diskforge/internal/core/domain"
	"github.com/melih/diskforge/internal/core/ports"
	"github.com/melih/diskforge/internal/core/services/build"
)

// Builder is the part of the build service the API drives.
type Builder interface {
	Build(ctx context.Context, req domain.BuildRequest, fb build.Feedback) (build.Result, error)
	Cancel(ctx context.Context, id string) error
	Running(id string) bool
}

// BuildHandler serves the build API and owns the builds it starts.
type BuildHandler struct {
	builder  Builder
	history  ports.BuildHistory
	progress *Tracker
	logger   *slog.Logger

	// Parent of every build started here; Drain cancels it.
	buildCtx    context.Context
	cancelBuild context.CancelFunc

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// NewBuildHandler creates the handler. A nil logger uses slog.Default().
func NewBuildHandler(builder Builder, history ports.BuildHistory, logger *slog.Logger) *BuildHandler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BuildHandler{
		builder:     builder,
		history:     history,
		progress:    NewTracker(),
		logger:      logger,
		buildCtx:    ctx,
		cancelBuild: cancel,
	}
}

// Register mounts the build routes on router.
func (h *BuildHandler) Register(router fiber.Router) {
	builds := router.Group("/builds")
	builds.Get("/", h.ListBuilds)
	builds.Post("/", h.StartBuild)
	builds.Get("/:id", h.GetBuild)
	builds.Delete("/:id", h.DeleteBuild)
	builds.Get("/:id/logs", h.GetBuildLogs)
}

// ListBuilds returns every recorded build, newest first.
func (h *BuildHandler) ListBuilds(c *fiber.Ctx) error {
	records, err := h.history.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if records == nil {
		records = []domain.BuildRecord{}
	}
	return c.JSON(records)
}

// StartBuildRequest is the body of POST /builds.
type StartBuildRequest struct {
	domain.BuildRequest
	Overwrite bool `json:"overwrite"` // Answer to "artifact exists, overwrite?"
}

// StartBuild validates the request and runs the build in the background.
// The response carries the build ID to poll.
func (h *BuildHandler) StartBuild(c *fiber.Ctx) error {
	var req StartBuildRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := build.Validate(req.BuildRequest); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if _, err := domain.ArtifactSubpath(req.Type); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	id := req.Identity()
	if h.builder.Running(id) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A build with the same identity is already running",
			"id":    id,
		})
	}

	if !h.begin() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Server is shutting down",
		})
	}

	buildReq := req.BuildRequest
	buildReq.ID = id
	feedback := build.Feedback{
		Notifier: &apiNotifier{logger: h.logger.With("build", id), overwrite: req.Overwrite},
		Progress: h.progress.Start(id),
	}

	// The build outlives the request; it is not tied to the request context.
	go func() {
		defer h.wg.Done()
		res, err := h.builder.Build(h.buildCtx, buildReq, feedback)
		h.progress.Finish(id, res, err)
		if res.Cancelled && h.isDraining() {
			h.markInterrupted(id)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id": id,
	})
}

// BuildResponse is a build record with its live progress, when this
// process started the build.
type BuildResponse struct {
	domain.BuildRecord
	Progress *Snapshot `json:"progress,omitempty"`
}

// GetBuild returns one build by ID.
func (h *BuildHandler) GetBuild(c *fiber.Ctx) error {
	id := c.Params("id")

	rec, err := h.history.Get(c.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		// Builds rejected before anything was recorded only exist in the tracker.
		if snap, ok := h.progress.Get(id); ok {
			return c.JSON(BuildResponse{
				BuildRecord: domain.BuildRecord{BuildRequest: domain.BuildRequest{ID: id}},
				Progress:    &snap,
			})
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Build not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	resp := BuildResponse{BuildRecord: rec}
	if snap, ok := h.progress.Get(id); ok {
		resp.Progress = &snap
	}
	return c.JSON(resp)
}

// DeleteBuild cancels the build if it is running and removes its record.
func (h *BuildHandler) DeleteBuild(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.builder.Cancel(c.Context(), id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err := h.history.Remove(c.Context(), id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	h.progress.Forget(id)

	return c.SendStatus(fiber.StatusNoContent)
}

// GetBuildLogs streams the build log written next to the artifact.
func (h *BuildHandler) GetBuildLogs(c *fiber.Ctx) error {
	id := c.Params("id")

	rec, err := h.history.Get(c.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Build not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	logs, err := os.Open(rec.LogPath)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Build log not available",
		})
	}

	// Fiber closes the stream once the body has been written.
	c.Set("Content-Type", "text/plain")
	return c.SendStream(logs)
}

func (h *BuildHandler) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return false
	}
	h.wg.Add(1)
	return true
}

func (h *BuildHandler) isDraining() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.draining
}

// A build cancelled by Drain keeps its record; it is closed as an error so it
// does not stay running.
func (h *BuildHandler) markInterrupted(id string) {
	ctx := context.Background()
	rec, err := h.history.Get(ctx, id)
	if err != nil || rec.Status.Terminal() {
		return
	}
	rec = rec.WithError("Build interrupted by server shutdown.", time.Now())
	if err := h.history.AddOrUpdate(ctx, rec); err != nil {
		h.logger.Error("failed to record interrupted build", "build", id, "error", err)
	}
}

// Drain refuses new builds, cancels the running ones and waits until they
// have returned, so their builder containers are removed. It gives up when
// ctx is done.
func (h *BuildHandler) Drain(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()
	h.cancelBuild()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("builds still running after shutdown: %w", ctx.Err())
	}
}

// apiNotifier routes build messages to the server log. The overwrite
// question was answered up front by the request.
type apiNotifier struct {
	logger    *slog.Logger
	overwrite bool
}

func (n *apiNotifier) Info(msg string)  { n.logger.Info(msg) }
func (n *apiNotifier) Warn(msg string)  { n.logger.Warn(msg) }
func (n *apiNotifier) Error(msg string) { n.logger.Error(msg) }

func (n *apiNotifier) Confirm(_ context.Context, msg string) (bool, error) {
	n.logger.Info(msg, "overwrite", n.overwrite)
	return n.overwrite, nil
}
