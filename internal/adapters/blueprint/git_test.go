package blueprint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/diskforge/internal/core/domain"
)

const blueprintTOML = `[[customizations.user]]
name = "alice"
groups = ["wheel"]
`

// Creates a local repository holding files and returns its path.
func newRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}

	_, err = wt.Commit("add blueprint", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

// Local test repositories are cloned in full.
func localSource() *GitSource {
	return &GitSource{}
}

func TestFetchDefaultPath(t *testing.T) {
	repo := newRepo(t, map[string]string{"config.toml": blueprintTOML})

	path, cleanup, err := localSource().Fetch(context.Background(), domain.Blueprint{Repo: repo})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, blueprintTOML, string(data))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFetchNestedPath(t *testing.T) {
	repo := newRepo(t, map[string]string{"fedora/server.toml": blueprintTOML})

	path, cleanup, err := localSource().Fetch(context.Background(), domain.Blueprint{Repo: repo, Path: "fedora/server.toml"})
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "server.toml", filepath.Base(path))
}

func TestFetchMissingFile(t *testing.T) {
	repo := newRepo(t, map[string]string{"README.md": "nothing here"})

	_, _, err := localSource().Fetch(context.Background(), domain.Blueprint{Repo: repo})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestBlueprintPathRejectsEscape(t *testing.T) {
	_, err := blueprintPath(t.TempDir(), "../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestBlueprintPathRejectsSymlinkOutside(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(outside, []byte("host only"), 0o600))
	root := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "config.toml")))

	_, err := blueprintPath(root, "config.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the repository")
}

func TestBlueprintPathFollowsSymlinkInside(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "blueprints"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "blueprints", "server.toml"), []byte(blueprintTOML), 0o644))
	require.NoError(t, os.Symlink(filepath.Join("blueprints", "server.toml"), filepath.Join(root, "config.toml")))

	path, err := blueprintPath(root, "config.toml")
	require.NoError(t, err)
	assert.Equal(t, "server.toml", filepath.Base(path))
}

func TestReferenceName(t *testing.T) {
	assert.Equal(t, plumbing.NewBranchReferenceName("main"), referenceName("main"))
	assert.Equal(t, plumbing.ReferenceName("refs/tags/v1"), referenceName("refs/tags/v1"))
}
