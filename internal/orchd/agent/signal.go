package agent

import (
	"strings"
	"time"
)

// DetectCommonSignal scans line (case-insensitively) for the substrings
// spec.md §4.5 lists, returning the first-matching signal in table
// order, or nil if line carries no signal. This is the default detector
// shared by every model adapter.
func DetectCommonSignal(line string) *AgentSignal {
	lower := strings.ToLower(line)

	var kind AgentSignalKind
	switch {
	case strings.Contains(lower, "needs_human"),
		strings.Contains(lower, "need_human"),
		strings.Contains(lower, "[need_human]"),
		strings.Contains(lower, "[needs_human]"):
		kind = SignalNeedHuman
	case strings.Contains(lower, "patch_ready"),
		strings.Contains(lower, "[patch_ready]"),
		strings.Contains(lower, "ready for review"):
		kind = SignalPatchReady
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "rate_limit"),
		strings.Contains(lower, "too many requests"):
		kind = SignalRateLimited
	case strings.Contains(lower, "error:"),
		strings.Contains(lower, "fatal:"),
		strings.Contains(lower, "traceback"):
		kind = SignalErrorHint
	default:
		return nil
	}

	return &AgentSignal{
		Kind:       kind,
		At:         time.Now().UTC(),
		Message:    strings.TrimSpace(line),
		SourceLine: line,
	}
}
