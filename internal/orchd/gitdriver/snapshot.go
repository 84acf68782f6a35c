package gitdriver

import (
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FileState classifies a changed file's porcelain status code.
type FileState string

const (
	FileAdded     FileState = "added"
	FileModified  FileState = "modified"
	FileDeleted   FileState = "deleted"
	FileRenamed   FileState = "renamed"
	FileCopied    FileState = "copied"
	FileUnmerged  FileState = "unmerged"
	FileUntracked FileState = "untracked"
	FileUnknown   FileState = "unknown"
)

// ChangedFile is one entry from a porcelain v1 status line.
type ChangedFile struct {
	Path       string
	State      FileState
	StatusCode string
}

// StatusSnapshot captures the repository's working-tree status at a
// point in time.
type StatusSnapshot struct {
	Branch       string
	Clean        bool
	ChangedFiles []ChangedFile
}

// DiffSnapshot captures the set of files that differ from a reference
// (or the index, if no reference given) plus a human-readable summary.
type DiffSnapshot struct {
	Files     []string
	Shortstat string
	// ReadableSummary is a diff of the shortstat line against an empty
	// baseline, rendered with go-diff so
	// artifacts carry something more legible than raw porcelain output.
	ReadableSummary string
}

// RepoSnapshot bundles a status and diff snapshot under one timestamp,
// suitable for persisting as an ArtifactRecord.
type RepoSnapshot struct {
	CapturedAt time.Time
	Status     StatusSnapshot
	Diff       DiffSnapshot
}

// CaptureStatusSnapshot runs `git status --porcelain=v1` and parses it.
func CaptureStatusSnapshot(repo RepoHandle, git CLI) (StatusSnapshot, error) {
	branch, err := CurrentBranch(repo, git)
	if err != nil {
		return StatusSnapshot{}, err
	}
	out, err := git.Run(repo.Root, "status", "--porcelain=v1")
	if err != nil {
		return StatusSnapshot{}, err
	}
	files, err := parsePorcelainStatus(out.Stdout)
	if err != nil {
		return StatusSnapshot{}, err
	}
	return StatusSnapshot{Branch: branch, Clean: len(files) == 0, ChangedFiles: files}, nil
}

// CaptureDiffSnapshot runs `git diff --name-only` (and `--shortstat`)
// against the working tree or, if againstRef is non-empty, against that
// ref. The ReadableSummary field renders a unified-looking line diff
// between the empty baseline and the shortstat line so downstream
// artifact viewers have something to show without shelling back out.
func CaptureDiffSnapshot(repo RepoHandle, git CLI, againstRef string) (DiffSnapshot, error) {
	nameArgs := []string{"diff", "--name-only"}
	if againstRef != "" {
		nameArgs = append(nameArgs, againstRef)
	}
	filesOut, err := git.Run(repo.Root, nameArgs...)
	if err != nil {
		return DiffSnapshot{}, err
	}
	var files []string
	for _, line := range strings.Split(filesOut.Stdout, "\n") {
		if strings.TrimSpace(line) != "" {
			files = append(files, line)
		}
	}

	statArgs := []string{"diff", "--shortstat"}
	if againstRef != "" {
		statArgs = append(statArgs, againstRef)
	}
	statOut, err := git.Run(repo.Root, statArgs...)
	if err != nil {
		return DiffSnapshot{}, err
	}
	shortstat := strings.TrimSpace(statOut.Stdout)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain("", shortstat, false)
	readable := dmp.DiffPrettyText(diffs)

	return DiffSnapshot{Files: files, Shortstat: shortstat, ReadableSummary: readable}, nil
}

// CaptureRepoSnapshot combines a status and diff snapshot.
func CaptureRepoSnapshot(repo RepoHandle, git CLI, againstRef string) (RepoSnapshot, error) {
	status, err := CaptureStatusSnapshot(repo, git)
	if err != nil {
		return RepoSnapshot{}, err
	}
	diff, err := CaptureDiffSnapshot(repo, git, againstRef)
	if err != nil {
		return RepoSnapshot{}, err
	}
	return RepoSnapshot{CapturedAt: time.Now().UTC(), Status: status, Diff: diff}, nil
}

func parsePorcelainStatus(raw string) ([]ChangedFile, error) {
	var files []ChangedFile
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 4 {
			return nil, parseErr("invalid porcelain status line: " + line)
		}
		code := line[0:2]
		path := line[3:]
		files = append(files, ChangedFile{Path: path, State: fileStateFromCode(code), StatusCode: code})
	}
	return files, nil
}

func fileStateFromCode(code string) FileState {
	switch {
	case code == "??":
		return FileUntracked
	case strings.Contains(code, "A"):
		return FileAdded
	case strings.Contains(code, "M"):
		return FileModified
	case strings.Contains(code, "D"):
		return FileDeleted
	case strings.Contains(code, "R"):
		return FileRenamed
	case strings.Contains(code, "C"):
		return FileCopied
	case strings.Contains(code, "U"):
		return FileUnmerged
	default:
		return FileUnknown
	}
}
