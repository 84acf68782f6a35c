// Package config decodes and validates the org-level and per-repo TOML
// configuration files that drive the orchestrator daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

// OrgConfig is the single org-wide configuration file (config/org.toml).
type OrgConfig struct {
	Models      ModelsConfig      `toml:"models"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Graphite    GraphiteOrgConfig `toml:"graphite"`
	UI          UIConfig          `toml:"ui"`
}

// ModelsConfig declares which model adapters are enabled and how review
// approvals are required.
type ModelsConfig struct {
	Enabled      []domain.ModelKind  `toml:"enabled"`
	Policy       domain.ReviewPolicy `toml:"policy"`
	MinApprovals int                 `toml:"min_approvals"`
}

// ConcurrencyConfig caps how many tasks may run at once, overall per repo
// and per model.
type ConcurrencyConfig struct {
	PerRepo int `toml:"per_repo"`
	Claude  int `toml:"claude"`
	Codex   int `toml:"codex"`
	Gemini  int `toml:"gemini"`
}

// MovePolicy is the closed set of Graphite stack-reordering policies.
// Manual is the only supported value today.
type MovePolicy string

const MovePolicyManual MovePolicy = "manual"

// GraphiteOrgConfig is the org-wide default behavior for Graphite submits.
type GraphiteOrgConfig struct {
	AutoSubmit        bool              `toml:"auto_submit"`
	SubmitModeDefault domain.SubmitMode `toml:"submit_mode_default"`
	AllowMove         MovePolicy        `toml:"allow_move"`
}

// UIConfig configures the optional web status surface.
type UIConfig struct {
	WebBind string `toml:"web_bind"`
}

// RepoConfig is one per-repo configuration file under config/repos/.
type RepoConfig struct {
	RepoID     domain.RepoId     `toml:"repo_id"`
	RepoPath   string            `toml:"repo_path"`
	BaseBranch string            `toml:"base_branch"`
	Nix        NixConfig         `toml:"nix"`
	Verify     VerifyConfig      `toml:"verify"`
	Graphite   RepoGraphiteConfig `toml:"graphite"`
}

// NixConfig names the dev-shell prefix commands are wrapped in.
type NixConfig struct {
	DevShell string `toml:"dev_shell"`
}

// VerifyConfig holds the quick and full command tiers for a repo.
type VerifyConfig struct {
	Quick VerifyCommands `toml:"quick"`
	Full  VerifyCommands `toml:"full"`
}

// VerifyCommands is an ordered, fail-fast list of shell commands.
type VerifyCommands struct {
	Commands []string `toml:"commands"`
}

// RepoGraphiteConfig is the per-repo override of org-wide Graphite defaults.
type RepoGraphiteConfig struct {
	DraftOnStart bool               `toml:"draft_on_start"`
	SubmitMode   *domain.SubmitMode `toml:"submit_mode"`
}

// TaskSpec is the operator-supplied description of one unit of work,
// typically submitted via a CLI or API call rather than read from TOML.
type TaskSpec struct {
	RepoID         domain.RepoId     `toml:"repo_id"`
	TaskID         domain.TaskId     `toml:"task_id"`
	Title          string            `toml:"title"`
	TaskType       domain.TaskType   `toml:"task_type"`
	Role           domain.TaskRole   `toml:"role"`
	PreferredModel *domain.ModelKind `toml:"preferred_model"`
	DependsOn      []domain.TaskId   `toml:"depends_on"`
	SubmitMode     *domain.SubmitMode `toml:"submit_mode"`
}

// ParseOrgConfig decodes TOML bytes into an OrgConfig.
func ParseOrgConfig(contents []byte) (OrgConfig, error) {
	var cfg OrgConfig
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		return OrgConfig{}, fmt.Errorf("parsing org config: %w", err)
	}
	return cfg, nil
}

// ParseRepoConfig decodes TOML bytes into a RepoConfig.
func ParseRepoConfig(contents []byte) (RepoConfig, error) {
	var cfg RepoConfig
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		return RepoConfig{}, fmt.Errorf("parsing repo config: %w", err)
	}
	return cfg, nil
}

// LoadOrgConfig reads and parses the org config file at path.
func LoadOrgConfig(path string) (OrgConfig, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return OrgConfig{}, fmt.Errorf("reading org config at %s: %w", path, err)
	}
	return ParseOrgConfig(body)
}

// LoadRepoConfig reads and parses a repo config file at path.
func LoadRepoConfig(path string) (RepoConfig, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return RepoConfig{}, fmt.Errorf("reading repo config at %s: %w", path, err)
	}
	return ParseRepoConfig(body)
}

// LoadedRepoConfig pairs a parsed RepoConfig with the file it came from,
// for error messages that need to point back at a specific file.
type LoadedRepoConfig struct {
	Path   string
	Config RepoConfig
}

// LoadRepoConfigs loads every *.toml file directly under dir, sorted by
// filename. A missing or empty directory is not an error: it yields a
// nil slice, since an org may run with zero repos configured yet.
func LoadRepoConfigs(dir string) ([]LoadedRepoConfig, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading repo config directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	loaded := make([]LoadedRepoConfig, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		cfg, err := LoadRepoConfig(path)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, LoadedRepoConfig{Path: path, Config: cfg})
	}
	return loaded, nil
}
