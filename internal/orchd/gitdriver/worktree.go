package gitdriver

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultWorktreeRoot is the repo-relative directory under which every
// task's isolated worktree is created.
const DefaultWorktreeRoot = ".orch/wt"

// WorktreeInfo describes a created worktree.
type WorktreeInfo struct {
	TaskID string
	Branch string
	Path   string
}

// ListedWorktree is one entry from `git worktree list --porcelain`.
type ListedWorktree struct {
	Path   string
	Branch string
	Head   string
}

// WorktreeManager creates and removes per-task worktrees under a
// repo-relative root, and lists the ones that already exist.
type WorktreeManager struct {
	git          CLI
	relativeRoot string
}

// NewWorktreeManager builds a manager rooted at relativeRoot (repo-root
// relative), e.g. DefaultWorktreeRoot.
func NewWorktreeManager(git CLI, relativeRoot string) WorktreeManager {
	return WorktreeManager{git: git, relativeRoot: relativeRoot}
}

// TaskWorktreePath is the deterministic path a task's worktree lives at:
// <repo_root>/<relative_root>/<task_id>.
func (m WorktreeManager) TaskWorktreePath(repo RepoHandle, taskID string) string {
	return filepath.Join(repo.Root, m.relativeRoot, taskID)
}

// CreateForExistingBranch adds a worktree at the task's path attached to
// an already-existing branch.
func (m WorktreeManager) CreateForExistingBranch(repo RepoHandle, taskID, branch string) (WorktreeInfo, error) {
	root := filepath.Join(repo.Root, m.relativeRoot)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return WorktreeInfo{}, ioErr("create_dir_all "+root, err)
	}

	path := m.TaskWorktreePath(repo, taskID)
	if _, err := m.git.Run(repo.Root, "worktree", "add", path, branch); err != nil {
		return WorktreeInfo{}, err
	}
	return WorktreeInfo{TaskID: taskID, Branch: branch, Path: path}, nil
}

// CreateWithEmptyInitialCommit creates a new branch for the task with a
// single empty commit ("start <task_id>") and a worktree attached to it,
// per spec.md §4.3.
func (m WorktreeManager) CreateWithEmptyInitialCommit(repo RepoHandle, taskID, branch string) (WorktreeInfo, error) {
	root := filepath.Join(repo.Root, m.relativeRoot)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return WorktreeInfo{}, ioErr("create_dir_all "+root, err)
	}

	path := m.TaskWorktreePath(repo, taskID)
	if _, err := m.git.Run(repo.Root, "worktree", "add", "-b", branch, path); err != nil {
		return WorktreeInfo{}, err
	}
	if _, err := m.git.Run(path, "commit", "--allow-empty", "-m", "start "+taskID); err != nil {
		return WorktreeInfo{}, err
	}
	return WorktreeInfo{TaskID: taskID, Branch: branch, Path: path}, nil
}

// Remove deletes the task's worktree. force maps to `git worktree remove
// --force`, needed when the worktree has uncommitted changes.
func (m WorktreeManager) Remove(repo RepoHandle, taskID string, force bool) error {
	path := m.TaskWorktreePath(repo, taskID)
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := m.git.Run(repo.Root, args...)
	return err
}

// List parses `git worktree list --porcelain` into ListedWorktree
// entries.
func (m WorktreeManager) List(repo RepoHandle) ([]ListedWorktree, error) {
	out, err := m.git.Run(repo.Root, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(out.Stdout)
}

func parseWorktreeList(raw string) ([]ListedWorktree, error) {
	var listed []ListedWorktree

	var path, branch, head string
	flush := func() {
		if path != "" {
			listed = append(listed, ListedWorktree{Path: path, Branch: branch, Head: head})
			path, branch, head = "", "", ""
		}
	}

	lines := strings.Split(raw, "\n")
	for _, line := range append(lines, "") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			path = strings.TrimSpace(strings.TrimPrefix(line, "worktree "))
		case strings.HasPrefix(line, "branch "):
			branch = strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(line, "branch ")), "refs/heads/")
		case strings.HasPrefix(line, "HEAD "):
			head = strings.TrimSpace(strings.TrimPrefix(line, "HEAD "))
		}
	}

	if len(listed) == 0 && strings.TrimSpace(raw) != "" {
		return nil, parseErr("unable to parse git worktree list output")
	}
	return listed, nil
}
