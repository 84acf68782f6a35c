package gitdriver

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runGit(t *testing.T, cwd string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = cwd
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v failed: %s", args, out)
}

func initRepo(t *testing.T, withCommit bool) string {
	t.Helper()
	root := t.TempDir()
	runGit(t, root, "init")
	if withCommit {
		require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("init\n"), 0o644))
		runGit(t, root, "add", "README.md")
		runGit(t, root, "-c", "user.name=Test User", "-c", "user.email=test@example.com", "commit", "-m", "init")
	}
	return root
}

func TestDiscoverRepo_FindsRootFromNestedPath(t *testing.T) {
	root := initRepo(t, false)
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	repo, err := DiscoverRepo(nested, DefaultCLI())
	require.NoError(t, err)
	require.Equal(t, root, repo.Root)
	require.Equal(t, filepath.Join(root, ".git"), repo.GitDir)
}

func TestDiscoverRepo_ReturnsNotARepositoryForPlainDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := DiscoverRepo(dir, DefaultCLI())
	require.Error(t, err)

	var gitErr *Error
	require.ErrorAs(t, err, &gitErr)
	require.Equal(t, ErrNotARepository, gitErr.Kind)
	require.Equal(t, dir, gitErr.Path)
}

func TestCurrentBranchAndHeadSHA(t *testing.T) {
	root := initRepo(t, true)
	repo, err := DiscoverRepo(root, DefaultCLI())
	require.NoError(t, err)

	branch, err := CurrentBranch(repo, DefaultCLI())
	require.NoError(t, err)
	require.NotEmpty(t, branch)

	sha, err := HeadSHA(repo, DefaultCLI())
	require.NoError(t, err)
	require.Len(t, sha, 40)
}

func TestHasUncommittedChanges(t *testing.T) {
	root := initRepo(t, true)
	repo, err := DiscoverRepo(root, DefaultCLI())
	require.NoError(t, err)

	clean, err := HasUncommittedChanges(repo, DefaultCLI())
	require.NoError(t, err)
	require.False(t, clean)

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("x"), 0o644))
	dirty, err := HasUncommittedChanges(repo, DefaultCLI())
	require.NoError(t, err)
	require.True(t, dirty)
}

func TestWorktreeManager_CreateListRemove(t *testing.T) {
	root := initRepo(t, true)
	repo, err := DiscoverRepo(root, DefaultCLI())
	require.NoError(t, err)

	mgr := NewWorktreeManager(DefaultCLI(), DefaultWorktreeRoot)
	info, err := mgr.CreateWithEmptyInitialCommit(repo, "T-1", "orch/t-1")
	require.NoError(t, err)
	require.Equal(t, mgr.TaskWorktreePath(repo, "T-1"), info.Path)
	require.DirExists(t, info.Path)

	listed, err := mgr.List(repo)
	require.NoError(t, err)
	found := false
	for _, l := range listed {
		if l.Branch == "orch/t-1" {
			found = true
		}
	}
	require.True(t, found, "expected listed worktree for orch/t-1, got %+v", listed)

	require.NoError(t, mgr.Remove(repo, "T-1", true))
	require.NoDirExists(t, info.Path)
}

func TestCaptureStatusSnapshot(t *testing.T) {
	root := initRepo(t, true)
	repo, err := DiscoverRepo(root, DefaultCLI())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "untracked.txt"), []byte("x"), 0o644))

	snap, err := CaptureStatusSnapshot(repo, DefaultCLI())
	require.NoError(t, err)
	require.False(t, snap.Clean)
	require.Len(t, snap.ChangedFiles, 1)
	require.Equal(t, FileUntracked, snap.ChangedFiles[0].State)
	require.Equal(t, "untracked.txt", snap.ChangedFiles[0].Path)
}

func TestParseWorktreeList_EmptyOutputIsNotAnError(t *testing.T) {
	listed, err := parseWorktreeList("")
	require.NoError(t, err)
	require.Empty(t, listed)
}
