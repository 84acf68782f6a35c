package gitdriver

import (
	"path/filepath"
	"strings"
)

// RepoHandle identifies a discovered git repository's root and .git dir.
type RepoHandle struct {
	Root   string
	GitDir string
}

// DiscoverRepo finds the repository containing startPath. It fails fast
// with NotARepository if startPath is not inside a work tree, and
// propagates any other git-command error unchanged.
func DiscoverRepo(startPath string, git CLI) (RepoHandle, error) {
	inside := false
	out, err := git.Run(startPath, "rev-parse", "--is-inside-work-tree")
	if err == nil {
		inside = strings.TrimSpace(out.Stdout) == "true"
	} else if gitErr, ok := err.(*Error); !ok || gitErr.Kind != ErrCommandFailed {
		return RepoHandle{}, err
	}

	if !inside {
		return RepoHandle{}, notARepositoryErr(startPath)
	}

	rootOut, err := git.Run(startPath, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoHandle{}, err
	}
	root := strings.TrimSpace(rootOut.Stdout)

	gitDirOut, err := git.Run(root, "rev-parse", "--git-dir")
	if err != nil {
		return RepoHandle{}, err
	}
	gitDirRel := strings.TrimSpace(gitDirOut.Stdout)
	gitDir := gitDirRel
	if !filepath.IsAbs(gitDirRel) {
		gitDir = filepath.Join(root, gitDirRel)
	}

	return RepoHandle{Root: root, GitDir: gitDir}, nil
}

// CurrentBranch returns the repo's checked-out branch name.
func CurrentBranch(repo RepoHandle, git CLI) (string, error) {
	out, err := git.Run(repo.Root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout), nil
}

// HeadSHA returns the repo's current HEAD commit SHA.
func HeadSHA(repo RepoHandle, git CLI) (string, error) {
	out, err := git.Run(repo.Root, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout), nil
}

// HasUncommittedChanges reports whether the work tree has any staged or
// unstaged changes.
func HasUncommittedChanges(repo RepoHandle, git CLI) (bool, error) {
	out, err := git.Run(repo.Root, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out.Stdout) != "", nil
}
