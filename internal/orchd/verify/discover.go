package verify

import (
	"os"
	"path/filepath"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

// DiscoverVerifyCommands guesses a repo's verify commands from the
// project files present at its root, in priority order: a justfile,
// then Cargo.toml, then package.json, then a Python project marker.
// The first ecosystem that matches wins; nothing is combined across
// ecosystems.
func DiscoverVerifyCommands(repoPath string, tier domain.VerifyTier) []string {
	if exists(repoPath, "justfile") || exists(repoPath, "Justfile") {
		if tier == domain.TierFull {
			return []string{"just test-all"}
		}
		return []string{"just fmt", "just lint", "just test"}
	}

	if exists(repoPath, "Cargo.toml") {
		if tier == domain.TierFull {
			return []string{"cargo test --workspace --all-targets --all-features"}
		}
		return []string{"cargo fmt --all -- --check", "cargo clippy --workspace --all-targets -- -D warnings", "cargo test --workspace"}
	}

	if exists(repoPath, "package.json") {
		if tier == domain.TierFull {
			return []string{"npm test", "npm run lint"}
		}
		return []string{"npm test"}
	}

	if exists(repoPath, "pyproject.toml") || exists(repoPath, "requirements.txt") || exists(repoPath, "setup.py") {
		if tier == domain.TierFull {
			return []string{"pytest", "ruff check ."}
		}
		return []string{"pytest"}
	}

	return nil
}

// ResolveVerifyCommands returns configured verbatim if the caller
// supplied any, otherwise falls back to discovery.
func ResolveVerifyCommands(repoPath string, tier domain.VerifyTier, configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return DiscoverVerifyCommands(repoPath, tier)
}

func exists(repoPath, name string) bool {
	_, err := os.Stat(filepath.Join(repoPath, name))
	return err == nil
}
