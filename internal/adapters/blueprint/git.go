package blueprint

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/melih/diskforge/internal/core/domain"
)

// DefaultPath is the blueprint file looked up when none is given.
const DefaultPath = "config.toml"

// GitSource fetches bootc-image-builder blueprints from git repositories.
type GitSource struct {
	// Progress receives clone progress output; nil discards it.
	Progress io.Writer
	// Depth limits clone history, 0 clones everything.
	Depth int
}

// NewGitSource returns a source doing shallow clones.
func NewGitSource() *GitSource {
	return &GitSource{Depth: 1}
}

// Fetch shallow-clones bp.Repo and returns the path of the blueprint file in
// the working tree. cleanup removes the clone.
func (g *GitSource) Fetch(ctx context.Context, bp domain.Blueprint) (string, func(), error) {
	// 1. Create temporary directory
	tmpDir, err := os.MkdirTemp("", "diskforge-blueprint-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	// 2. Clone Repository
	opts := &git.CloneOptions{
		URL:      bp.Repo,
		Progress: g.Progress,
		Depth:    g.Depth,
	}
	if bp.Ref != "" {
		opts.ReferenceName = referenceName(bp.Ref)
		opts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, tmpDir, false, opts); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to clone repo: %w", err)
	}

	// 3. Locate the blueprint inside the clone
	path, err := blueprintPath(tmpDir, bp.Path)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// Branches are assumed unless the ref is fully qualified.
func referenceName(ref string) plumbing.ReferenceName {
	if strings.HasPrefix(ref, "refs/") {
		return plumbing.ReferenceName(ref)
	}
	return plumbing.NewBranchReferenceName(ref)
}

// Resolves rel inside root, refusing paths that leave the clone, symlinks
// included.
func blueprintPath(root, rel string) (string, error) {
	if rel == "" {
		rel = DefaultPath
	}
	root, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repository path: %w", err)
	}
	path := filepath.Join(root, filepath.FromSlash(rel))
	if !within(root, path) {
		return "", fmt.Errorf("blueprint path %q escapes the repository", rel)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("blueprint %s not found in repository: %w", rel, err)
	}
	if !within(root, resolved) {
		return "", fmt.Errorf("blueprint %s links outside the repository", rel)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("blueprint %s not found in repository: %w", rel, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("blueprint %s is a directory", rel)
	}
	return resolved, nil
}

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
