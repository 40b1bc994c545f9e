package git

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/domain"
)

func TestIsGitRepo(t *testing.T) {
	client := NewClient(t.TempDir(), "-kiln-")

	t.Run("inside a repository", func(t *testing.T) {
		repo := setupTestRepo(t)

		ok, root := client.IsGitRepo(repo)

		assert.True(t, ok)
		// Resolve symlinks on both sides; macOS tempdirs live under /var -> /private/var.
		wantRoot, err := filepath.EvalSymlinks(repo)
		require.NoError(t, err)
		gotRoot, err := filepath.EvalSymlinks(root)
		require.NoError(t, err)
		assert.Equal(t, wantRoot, gotRoot)
	})

	t.Run("plain directory", func(t *testing.T) {
		ok, root := client.IsGitRepo(t.TempDir())

		assert.False(t, ok)
		assert.Empty(t, root)
	})
}

func TestDefaultBranch_LocalFallback(t *testing.T) {
	client := NewClient(t.TempDir(), "-kiln-")
	repo := setupTestRepo(t)

	// No origin remote, so resolution falls back to the local branch.
	branch := client.DefaultBranch(repo)

	assert.Contains(t, []string{"main", "master"}, branch)
}

func TestDefaultBranch_NoRefsAssumesMain(t *testing.T) {
	client := NewClient(t.TempDir(), "-kiln-")
	dir := t.TempDir()
	runGit(t, dir, "init")

	// Empty repository: no commits, no refs at all.
	assert.Equal(t, "main", client.DefaultBranch(dir))
}

func TestRemoteURL(t *testing.T) {
	client := NewClient(t.TempDir(), "-kiln-")
	repo := setupTestRepo(t)

	assert.Empty(t, client.RemoteURL(repo), "no origin configured")

	runGit(t, repo, "remote", "add", "origin", "https://example.com/team/api.git")
	assert.Equal(t, "https://example.com/team/api.git", client.RemoteURL(repo))
}

func TestDiscoverRepos(t *testing.T) {
	client := NewClient(t.TempDir(), "-kiln-")
	root := t.TempDir()

	// Two repos, one plain directory, one file.
	for _, name := range []string{"api", "web"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0755))
		runGit(t, dir, "init")
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))

	repos, err := client.DiscoverRepos(root)

	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "api", repos[0].Name)
	assert.Equal(t, filepath.Join(root, "api"), repos[0].Root)
	assert.Equal(t, "web", repos[1].Name)
}

func TestDiscoverRepos_EmptyRoot(t *testing.T) {
	client := NewClient(t.TempDir(), "-kiln-")

	repos, err := client.DiscoverRepos(t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, repos)
}

func TestListOrphanWorktrees(t *testing.T) {
	base := t.TempDir()
	client := NewClient(base, "-kiln-")

	tracked := filepath.Join(base, "api-kiln-11111111")
	orphan := filepath.Join(base, "api-kiln-22222222")
	unrelated := filepath.Join(base, "scratch")
	for _, dir := range []string{tracked, orphan, unrelated} {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}

	orphans, err := client.ListOrphanWorktrees(base, "-kiln-", []string{tracked})

	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, orphans)
}

func TestListOrphanWorktrees_MissingBase(t *testing.T) {
	client := NewClient(t.TempDir(), "-kiln-")

	orphans, err := client.ListOrphanWorktrees(filepath.Join(t.TempDir(), "nope"), "-kiln-", nil)

	require.NoError(t, err)
	assert.Nil(t, orphans)
}

func TestDiscoverRepos_PopulatesDefaults(t *testing.T) {
	client := NewClient(t.TempDir(), "-kiln-")
	root := t.TempDir()
	dir := filepath.Join(root, "api")
	require.NoError(t, os.MkdirAll(dir, 0755))
	runGit(t, dir, "init")
	runGit(t, dir, "remote", "add", "origin", "git@example.com:team/api.git")

	repos, err := client.DiscoverRepos(root)

	require.NoError(t, err)
	require.Len(t, repos, 1)
	want := domain.RepoInfo{
		DefaultBranch: "main",
		Name:          "api",
		RemoteURL:     "git@example.com:team/api.git",
		Root:          dir,
	}
	assert.Equal(t, want, repos[0])
}
