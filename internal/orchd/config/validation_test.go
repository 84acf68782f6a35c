package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

func validOrgConfig() OrgConfig {
	return OrgConfig{
		Models: ModelsConfig{
			Enabled:      []domain.ModelKind{domain.ModelClaude, domain.ModelCodex},
			Policy:       domain.PolicyAdaptive,
			MinApprovals: 2,
		},
		Concurrency: ConcurrencyConfig{PerRepo: 10, Claude: 10, Codex: 10, Gemini: 10},
		Graphite: GraphiteOrgConfig{
			AutoSubmit:        true,
			SubmitModeDefault: domain.SubmitSingle,
			AllowMove:         MovePolicyManual,
		},
		UI: UIConfig{WebBind: "127.0.0.1:9842"},
	}
}

func validRepoConfig() RepoConfig {
	return RepoConfig{
		RepoID:     "example",
		RepoPath:   "/tmp/example",
		BaseBranch: "main",
		Nix:        NixConfig{DevShell: "nix develop"},
		Verify: VerifyConfig{
			Quick: VerifyCommands{Commands: []string{"nix develop -c cargo test"}},
			Full:  VerifyCommands{Commands: []string{"nix develop -c cargo test --all-targets"}},
		},
		Graphite: RepoGraphiteConfig{DraftOnStart: true},
	}
}

func TestValidateOrgConfigReportsExpectedErrors(t *testing.T) {
	cfg := validOrgConfig()
	cfg.Concurrency.PerRepo = 0
	cfg.Models.MinApprovals = 1

	issues := ValidateOrgConfig(cfg)
	assert.Len(t, issues, 2)
	assert.True(t, hasIssue(issues, LevelError, "concurrency.per_repo.zero"))
	assert.True(t, hasIssue(issues, LevelError, "models.min_approvals.too_low"))
}

func TestValidateOrgConfigAllowsSingleModelWithMinApprovalsOne(t *testing.T) {
	cfg := validOrgConfig()
	cfg.Models.Enabled = []domain.ModelKind{domain.ModelClaude}
	cfg.Models.MinApprovals = 1

	assert.Empty(t, ValidateOrgConfig(cfg))
}

func TestValidateOrgConfigReportsEmptyEnabledModels(t *testing.T) {
	cfg := validOrgConfig()
	cfg.Models.Enabled = nil

	issues := ValidateOrgConfig(cfg)
	assert.Len(t, issues, 1)
	assert.True(t, hasIssue(issues, LevelError, "models.enabled.empty"))
}

func TestValidateOrgConfigAllowsLowMinApprovalsInStrictPolicy(t *testing.T) {
	cfg := validOrgConfig()
	cfg.Models.Policy = domain.PolicyStrict
	cfg.Models.MinApprovals = 1

	for _, issue := range ValidateOrgConfig(cfg) {
		assert.NotEqual(t, "models.min_approvals.too_low", issue.Code)
	}
}

func TestValidateRepoConfigReportsErrorsAndWarning(t *testing.T) {
	cfg := validRepoConfig()
	cfg.RepoID = "  "
	cfg.BaseBranch = ""
	cfg.Verify.Quick.Commands = nil
	cfg.Verify.Full.Commands = nil

	issues := ValidateRepoConfig(cfg)
	assert.Len(t, issues, 4)
	assert.True(t, hasIssue(issues, LevelError, "repo.repo_id.empty"))
	assert.True(t, hasIssue(issues, LevelError, "repo.base_branch.empty"))
	assert.True(t, hasIssue(issues, LevelError, "verify.quick.commands.empty"))
	assert.True(t, hasIssue(issues, LevelWarning, "verify.full.commands.empty"))
}

func TestValidateTaskSpecReportsMissingIdentifiersAndTitle(t *testing.T) {
	spec := TaskSpec{TaskID: " ", RepoID: "", Title: "   "}

	issues := ValidateTaskSpec(spec)
	assert.Len(t, issues, 3)
	assert.True(t, hasIssue(issues, LevelError, "task.task_id.empty"))
	assert.True(t, hasIssue(issues, LevelError, "task.repo_id.empty"))
	assert.True(t, hasIssue(issues, LevelError, "task.title.empty"))
}

func hasIssue(issues []ValidationIssue, level ValidationLevel, code string) bool {
	for _, issue := range issues {
		if issue.Level == level && issue.Code == code {
			return true
		}
	}
	return false
}
