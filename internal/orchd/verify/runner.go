package verify

import (
	"strings"
	"time"

	"github.com/othala-dev/orchd/internal/orchd/domain"
)

// Runner executes a tier's verify commands in sequence, stopping at
// the first failure.
type Runner struct {
	ShellBin string
}

// NewRunner builds a Runner using "bash" as its shell.
func NewRunner() Runner { return Runner{ShellBin: "bash"} }

// RunTier runs each of commands under repoPath, wrapping it through
// devShellPrefix first when one is configured, and stops at the first
// failing command. Passing no commands is an InvalidConfig error: a
// tier with nothing to run should not have been scheduled at all.
func (r Runner) RunTier(repoPath, devShellPrefix string, tier domain.VerifyTier, commands []string) (Result, error) {
	if len(commands) == 0 {
		return Result{}, invalidConfigErr("no verify commands configured for this tier")
	}
	if devShellPrefix != "" && strings.TrimSpace(devShellPrefix) == "" {
		return Result{}, invalidConfigErr("dev shell prefix must not be blank")
	}

	shellBin := r.ShellBin
	if shellBin == "" {
		shellBin = "bash"
	}

	startedAt := time.Now().UTC()
	result := Result{Tier: tier, StartedAt: startedAt, Outcome: OutcomePassed}

	for _, raw := range commands {
		prepared := PrepareVerifyCommand(devShellPrefix, raw)

		cmdStarted := time.Now().UTC()
		out, err := runShellCommand(repoPath, shellBin, prepared.Effective)
		cmdFinished := time.Now().UTC()
		if err != nil {
			return Result{}, err
		}

		outcome := OutcomePassed
		var failureClass *FailureClass
		if !out.Success {
			outcome = OutcomeFailed
			class := ClassifyFailure(out.Stdout, out.Stderr)
			failureClass = &class
		}

		result.Commands = append(result.Commands, CommandResult{
			Command:      prepared,
			Outcome:      outcome,
			FailureClass: failureClass,
			ExitCode:     out.ExitCode,
			StartedAt:    cmdStarted,
			FinishedAt:   cmdFinished,
			Stdout:       out.Stdout,
			Stderr:       out.Stderr,
		})

		if outcome == OutcomeFailed {
			result.Outcome = OutcomeFailed
			break
		}
	}

	result.FinishedAt = time.Now().UTC()
	return result, nil
}

// alternateDevShellPrefixes are recognized as already-wrapped regardless
// of the configured devShellPrefix, since any of them already puts the
// command inside a dev shell invocation.
var alternateDevShellPrefixes = []string{"nix develop", "nix shell", "nix-shell"}

// PrepareVerifyCommand normalizes raw's whitespace and, when
// devShellPrefix is configured and raw isn't already wrapped with it or
// with one of the alternate dev shell invocations, wraps raw in a
// single-quoted argument to devShellPrefix.
func PrepareVerifyCommand(devShellPrefix, raw string) PreparedCommand {
	normalized := normalizeWhitespace(raw)
	prefix := normalizeWhitespace(devShellPrefix)

	if prefix == "" || commandHasAnyPrefix(normalized, prefix) {
		return PreparedCommand{Original: raw, Effective: normalized, WrappedWithDevShell: false}
	}

	wrapped := prefix + " -c " + shellQuoteVerify(normalized)
	return PreparedCommand{Original: raw, Effective: wrapped, WrappedWithDevShell: true}
}

// commandHasAnyPrefix reports whether normalized already begins with
// prefix, or with any of alternateDevShellPrefixes, as a whole-word
// command prefix, so a command that already invokes a dev shell isn't
// double-wrapped.
func commandHasAnyPrefix(normalized, prefix string) bool {
	if commandHasPrefix(normalized, prefix) {
		return true
	}
	for _, alt := range alternateDevShellPrefixes {
		if commandHasPrefix(normalized, alt) {
			return true
		}
	}
	return false
}

func commandHasPrefix(normalized, prefix string) bool {
	if normalized == prefix {
		return true
	}
	return strings.HasPrefix(normalized, prefix+" ")
}

func normalizeWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// shellQuoteVerify single-quotes value for embedding as one shell
// argument, escaping embedded single quotes.
func shellQuoteVerify(value string) string {
	escaped := strings.ReplaceAll(value, "'", `'"'"'`)
	return "'" + escaped + "'"
}

// ClassifyFailure scans stdout and stderr, lowercased and combined,
// for the first matching failure category in priority order.
func ClassifyFailure(stdout, stderr string) FailureClass {
	combined := strings.ToLower(stdout + "\n" + stderr)

	switch {
	case containsAny(combined, "test failed", "failing tests", "assertion failed"):
		return FailureTests
	case containsAny(combined, "clippy", "lint", "denied warning"):
		return FailureLint
	case containsAny(combined, "rustfmt", "format"):
		return FailureFormat
	case containsAny(combined, "could not resolve", "failed to fetch", "permission denied", "not found", "unable to", "network"):
		return FailureEnvironment
	case containsAny(combined, "error:", "linker", "compile"):
		return FailureBuild
	default:
		return FailureUnknown
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
