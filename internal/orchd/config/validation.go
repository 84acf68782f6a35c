package config

import (
	"strings"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

// ValidationLevel distinguishes a hard error from an advisory warning.
type ValidationLevel string

const (
	LevelError   ValidationLevel = "error"
	LevelWarning ValidationLevel = "warning"
)

// ValidationIssue is one finding from validating a config value. Code is a
// stable machine-readable identifier; Message is for humans.
type ValidationIssue struct {
	Level   ValidationLevel
	Code    string
	Message string
}

// ValidateOrgConfig checks an OrgConfig for internal consistency.
func ValidateOrgConfig(cfg OrgConfig) []ValidationIssue {
	var issues []ValidationIssue

	if len(cfg.Models.Enabled) == 0 {
		issues = append(issues, ValidationIssue{
			Level:   LevelError,
			Code:    "models.enabled.empty",
			Message: "at least one model must be enabled",
		})
	}

	if cfg.Concurrency.PerRepo == 0 {
		issues = append(issues, ValidationIssue{
			Level:   LevelError,
			Code:    "concurrency.per_repo.zero",
			Message: "per_repo concurrency must be greater than zero",
		})
	}

	if cfg.Models.Policy == domain.PolicyAdaptive &&
		len(cfg.Models.Enabled) >= 2 &&
		cfg.Models.MinApprovals < 2 {
		issues = append(issues, ValidationIssue{
			Level:   LevelError,
			Code:    "models.min_approvals.too_low",
			Message: "adaptive policy requires min_approvals >= 2 when two or more models are enabled",
		})
	}

	return issues
}

// ValidateRepoConfig checks a RepoConfig for internal consistency.
func ValidateRepoConfig(cfg RepoConfig) []ValidationIssue {
	var issues []ValidationIssue

	if strings.TrimSpace(cfg.RepoID) == "" {
		issues = append(issues, ValidationIssue{
			Level:   LevelError,
			Code:    "repo.repo_id.empty",
			Message: "repo_id must not be empty",
		})
	}

	if strings.TrimSpace(cfg.BaseBranch) == "" {
		issues = append(issues, ValidationIssue{
			Level:   LevelError,
			Code:    "repo.base_branch.empty",
			Message: "base_branch must not be empty",
		})
	}

	if len(cfg.Verify.Quick.Commands) == 0 {
		issues = append(issues, ValidationIssue{
			Level:   LevelError,
			Code:    "verify.quick.commands.empty",
			Message: "verify.quick.commands must contain at least one command",
		})
	}

	if len(cfg.Verify.Full.Commands) == 0 {
		issues = append(issues, ValidationIssue{
			Level:   LevelWarning,
			Code:    "verify.full.commands.empty",
			Message: "verify.full.commands is empty; merge sandbox full verification will be unavailable",
		})
	}

	return issues
}

// ValidateTaskSpec checks a TaskSpec for the minimal fields the
// orchestrator needs before admitting it.
func ValidateTaskSpec(spec TaskSpec) []ValidationIssue {
	var issues []ValidationIssue

	if strings.TrimSpace(spec.TaskID) == "" {
		issues = append(issues, ValidationIssue{
			Level:   LevelError,
			Code:    "task.task_id.empty",
			Message: "task_id must not be empty",
		})
	}

	if strings.TrimSpace(spec.RepoID) == "" {
		issues = append(issues, ValidationIssue{
			Level:   LevelError,
			Code:    "task.repo_id.empty",
			Message: "repo_id must not be empty",
		})
	}

	if strings.TrimSpace(spec.Title) == "" {
		issues = append(issues, ValidationIssue{
			Level:   LevelError,
			Code:    "task.title.empty",
			Message: "title must not be empty",
		})
	}

	return issues
}

// HasErrors reports whether any issue in the slice is Level == LevelError.
func HasErrors(issues []ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Level == LevelError {
			return true
		}
	}
	return false
}

// ErrorMessages joins the message of every error-level issue, for
// presenting a single combined error to the operator.
func ErrorMessages(issues []ValidationIssue) []string {
	var msgs []string
	for _, issue := range issues {
		if issue.Level == LevelError {
			msgs = append(msgs, issue.Message)
		}
	}
	return msgs
}
