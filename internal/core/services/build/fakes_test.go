package build

import (
	"context"
	"errors"
	"sync"

	"github.com/melih/diskforge/internal/core/domain"
)

type fakeRuntime struct {
	mu sync.Mutex

	rootful     bool
	rootfulErr  error
	containers  []domain.Container
	listErr     error
	pullErr     error
	removeErr   error
	createErr   error
	containerID string
	logChunks   []string
	waitFn      func(ctx context.Context) error
	cleanupErr  error

	calls   map[string]int
	pulled  []string
	created []domain.LaunchSpec
	removed []string
	cleaned []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{rootful: true, containerID: "c0ffee", calls: map[string]int{}}
}

func (f *fakeRuntime) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeRuntime) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeRuntime) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRuntime) IsRootful(context.Context, string) (bool, error) {
	f.count("rootful")
	return f.rootful, f.rootfulErr
}

func (f *fakeRuntime) PullImage(_ context.Context, _, ref string) error {
	f.count("pull")
	f.pulled = append(f.pulled, ref)
	return f.pullErr
}

func (f *fakeRuntime) ListContainers(context.Context, string) ([]domain.Container, error) {
	f.count("list")
	return f.containers, f.listErr
}

func (f *fakeRuntime) RemoveContainerIfExists(_ context.Context, _, name string) error {
	f.count("remove")
	f.removed = append(f.removed, name)
	return f.removeErr
}

func (f *fakeRuntime) CreateAndStart(_ context.Context, _ string, spec domain.LaunchSpec) (string, error) {
	f.count("create")
	f.created = append(f.created, spec)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.containerID, nil
}

func (f *fakeRuntime) Logs(ctx context.Context, _, _ string, onChunk func(stream, data string)) error {
	f.count("logs")
	for _, c := range f.logChunks {
		onChunk("stdout", c)
	}
	return nil
}

func (f *fakeRuntime) WaitForExit(ctx context.Context, _, _ string) error {
	f.count("wait")
	if f.waitFn != nil {
		return f.waitFn(ctx)
	}
	return nil
}

func (f *fakeRuntime) RemoveContainerAndVolumes(_ context.Context, _, name string) error {
	f.count("cleanup")
	f.mu.Lock()
	f.cleaned = append(f.cleaned, name)
	f.mu.Unlock()
	return f.cleanupErr
}

type memHistory struct {
	mu      sync.Mutex
	records map[string]domain.BuildRecord
	writes  []domain.BuildRecord
	failAdd bool
}

func newMemHistory() *memHistory {
	return &memHistory{records: map[string]domain.BuildRecord{}}
}

func (h *memHistory) AddOrUpdate(_ context.Context, rec domain.BuildRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = append(h.writes, rec)
	if h.failAdd {
		return errors.New("disk full")
	}
	h.records[rec.ID] = rec
	return nil
}

func (h *memHistory) List(context.Context) ([]domain.BuildRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.BuildRecord
	for _, r := range h.records {
		out = append(out, r)
	}
	return out, nil
}

func (h *memHistory) Get(_ context.Context, id string) (domain.BuildRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.records[id]
	if !ok {
		return domain.BuildRecord{}, domain.ErrNotFound
	}
	return r, nil
}

func (h *memHistory) Remove(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.records, id)
	return nil
}

func (h *memHistory) statuses() []domain.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.Status
	for _, w := range h.writes {
		out = append(out, w.Status)
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
	asked  []string
	answer bool
	// Called before answering, outside the lock.
	onConfirm func()
}

func (n *recordingNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *recordingNotifier) Warn(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warns = append(n.warns, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) Confirm(_ context.Context, msg string) (bool, error) {
	if n.onConfirm != nil {
		n.onConfirm()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.asked = append(n.asked, msg)
	return n.answer, nil
}

type recordingProgress struct {
	mu     sync.Mutex
	deltas []int
}

func (p *recordingProgress) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deltas = append(p.deltas, delta)
}

type fakeBlueprints struct {
	path     string
	err      error
	released bool
}

func (b *fakeBlueprints) Fetch(context.Context, domain.Blueprint) (string, func(), error) {
	if b.err != nil {
		return "", func() {}, b.err
	}
	return b.path, func() { b.released = true }, nil
}
