package graphite

import (
	"time"

	"github.com/othala-dev/orchd/internal/orchd/domain"
	cache "github.com/patrickmn/go-cache"
)

// snapshotCacheTTL bounds how long a status/log-short snapshot is
// reused between ready-gate evaluations on the same repo; long enough
// to avoid re-shelling out on every gate check in a tight poll loop,
// short enough that a real restack or submit is reflected promptly.
const snapshotCacheTTL = 3 * time.Second

// Client is the per-repository Graphite driver. The daemon must hold at
// most one Client actively running a mutating command per repo_root at
// a time (spec.md §5: "the graphite CLI is serialized per repository");
// that lock lives in the orchestrator service, not here.
type Client struct {
	cli      CLI
	repoRoot string
	cache    *cache.Cache
}

// NewClient builds a Client for repoRoot using the default `gt` binary.
func NewClient(repoRoot string) *Client {
	return NewClientWithCLI(repoRoot, DefaultCLI())
}

// NewClientWithCLI builds a Client with an explicit CLI, used by tests
// to point at a fake `gt` binary.
func NewClientWithCLI(repoRoot string, cli CLI) *Client {
	return &Client{
		cli:      cli,
		repoRoot: repoRoot,
		cache:    cache.New(snapshotCacheTTL, 2*snapshotCacheTTL),
	}
}

// RepoRoot returns the repository root this client operates on.
func (c *Client) RepoRoot() string { return c.repoRoot }

// CreateBranch runs `gt create <branch>`.
func (c *Client) CreateBranch(branch string) error {
	if branch == "" {
		return &Error{Kind: ErrContractViolation, Message: "branch name for gt create must not be empty"}
	}
	_, err := c.cli.RunAllowed(c.repoRoot, CmdCreate, "create", branch)
	return err
}

// Restack runs `gt restack`.
func (c *Client) Restack() error {
	_, err := c.cli.RunAllowed(c.repoRoot, CmdRestack, "restack")
	return err
}

// BeginConflictResolution runs `gt add -A`, staging all files after a
// human or agent has resolved a restack conflict.
func (c *Client) BeginConflictResolution() error {
	_, err := c.cli.RunAllowed(c.repoRoot, CmdAddAllForConflict, "add", "-A")
	return err
}

// ContinueConflictResolution runs `gt continue`.
func (c *Client) ContinueConflictResolution() error {
	_, err := c.cli.RunAllowed(c.repoRoot, CmdContinueConflict, "continue")
	return err
}

// StatusSnapshot runs `gt status`, consulting the short-TTL cache first.
func (c *Client) StatusSnapshot() (StatusSnapshot, error) {
	if cached, ok := c.cache.Get("status"); ok {
		return cached.(StatusSnapshot), nil
	}
	out, err := c.cli.RunAllowed(c.repoRoot, CmdStatus, "status")
	if err != nil {
		return StatusSnapshot{}, err
	}
	snap := StatusSnapshot{CapturedAt: time.Now().UTC(), Raw: out.Stdout}
	c.cache.SetDefault("status", snap)
	return snap, nil
}

// LogShortSnapshot runs `gt log short` and parses the result,
// consulting the short-TTL cache first.
func (c *Client) LogShortSnapshot() (StackSnapshot, error) {
	if cached, ok := c.cache.Get("log_short"); ok {
		return cached.(StackSnapshot), nil
	}
	out, err := c.cli.RunAllowed(c.repoRoot, CmdLogShort, "log", "short")
	if err != nil {
		return StackSnapshot{}, err
	}
	snap := ParseLogShort(out.Stdout)
	c.cache.SetDefault("log_short", snap)
	return snap, nil
}

// InvalidateSnapshots drops cached status/log-short snapshots; called
// after any mutating command (restack, submit) so the next ready-gate
// evaluation sees fresh state instead of a stale cache entry.
func (c *Client) InvalidateSnapshots() {
	c.cache.Delete("status")
	c.cache.Delete("log_short")
}

// InferStackDependencies fetches a fresh log-short snapshot and infers
// parent/child task edges from it via branchToTask.
func (c *Client) InferStackDependencies(branchToTask map[string]string) ([]InferredDependency, error) {
	snap, err := c.LogShortSnapshot()
	if err != nil {
		return nil, err
	}
	return InferDependenciesFromStack(snap, branchToTask), nil
}

// Submit runs `gt submit` or `gt submit --stack` depending on mode.
func (c *Client) Submit(mode domain.SubmitMode) error {
	defer c.InvalidateSnapshots()
	switch mode {
	case domain.SubmitStack:
		_, err := c.cli.RunAllowed(c.repoRoot, CmdSubmitStack, "submit", "--stack")
		return err
	default:
		_, err := c.cli.RunAllowed(c.repoRoot, CmdSubmit, "submit")
		return err
	}
}
