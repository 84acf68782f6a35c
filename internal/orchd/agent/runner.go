package agent

import (
	"bufio"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

// PtySize is the terminal geometry the child process sees.
type PtySize struct {
	Rows uint16
	Cols uint16
}

// DefaultPtySize matches the daemon's default terminal: large enough
// that CLIs which detect a narrow terminal and truncate their own
// output don't kick in.
func DefaultPtySize() PtySize { return PtySize{Rows: 40, Cols: 120} }

// EpochRunner drives one agent epoch under a PTY per spec.md §4.5.
type EpochRunner struct {
	ShellBin     string
	PtySize      PtySize
	PollInterval time.Duration
}

// NewEpochRunner builds a runner with the spec's defaults: "bash",
// 40x120, 50ms polling.
func NewEpochRunner() EpochRunner {
	return EpochRunner{ShellBin: "bash", PtySize: DefaultPtySize(), PollInterval: 50 * time.Millisecond}
}

// RunEpoch spawns adapter's command for request under a PTY, line-
// buffers its output, and stops on process exit, a terminal signal
// (need-human/patch-ready/rate-limited), or the request's timeout.
func (r EpochRunner) RunEpoch(request EpochRequest, adapter Adapter) (EpochResult, error) {
	if request.TimeoutSecs == 0 {
		return EpochResult{}, invalidRequestErr("timeout_secs must be greater than zero")
	}
	if strings.TrimSpace(request.Prompt) == "" {
		return EpochResult{}, invalidRequestErr("prompt must not be empty")
	}

	startedAt := time.Now().UTC()
	deadline := time.Now().Add(time.Duration(request.TimeoutSecs) * time.Second)

	command := adapter.BuildCommand(request)
	invocation := renderShellInvocation(request.RepoPath, command)

	cmd := exec.Command(r.ShellBin, "-lc", invocation)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: r.PtySize.Rows, Cols: r.PtySize.Cols})
	if err != nil {
		return EpochResult{}, spawnErr(err.Error())
	}
	defer ptmx.Close()

	lineCh := make(chan string, 64)
	var readerWg sync.WaitGroup
	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		defer close(lineCh)
		reader := bufio.NewReader(ptmx)
		for {
			line, readErr := reader.ReadString('\n')
			if line != "" {
				lineCh <- line
			}
			if readErr != nil {
				return
			}
		}
	}()

	exitCh := make(chan *os.ProcessState, 1)
	go func() {
		state, _ := cmd.Process.Wait()
		exitCh <- state
	}()

	var output []PtyChunk
	var signals []AgentSignal
	var stopReason EpochStopReason
	killed := false

	kill := func(reason EpochStopReason) {
		if killed {
			return
		}
		killed = true
		stopReason = reason
		_ = cmd.Process.Kill()
	}

	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	var finalState *os.ProcessState
	lineChOpen := true

waitLoop:
	for {
		select {
		case line, ok := <-lineCh:
			if !ok {
				lineChOpen = false
				lineCh = nil
				continue
			}
			if reason, forced := drainOneLine(line, adapter, &output, &signals); forced {
				kill(reason)
			}
		case state := <-exitCh:
			finalState = state
			break waitLoop
		case <-ticker.C:
			if !killed && !time.Now().Before(deadline) {
				kill(StopTimeout)
			}
		}
	}

	readerWg.Wait()
	if lineChOpen {
		for line := range lineCh {
			if reason, forced := drainOneLine(line, adapter, &output, &signals); forced && stopReason == "" {
				stopReason = reason
			}
		}
	}

	var exitCode *int
	if finalState != nil {
		code := finalState.ExitCode()
		exitCode = &code
	}

	finalReason := stopReason
	if finalReason == "" {
		if finalState != nil && finalState.Success() {
			finalReason = StopCompleted
		} else {
			finalReason = StopFailed
		}
	}

	return EpochResult{
		TaskID:     request.TaskID,
		RepoID:     request.RepoID,
		Model:      request.Model,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		StopReason: finalReason,
		ExitCode:   exitCode,
		Output:     output,
		Signals:    signals,
	}, nil
}

// drainOneLine appends line to output and runs signal detection,
// returning the stop reason the first non-informational signal forces.
func drainOneLine(line string, adapter Adapter, output *[]PtyChunk, signals *[]AgentSignal) (EpochStopReason, bool) {
	*output = append(*output, PtyChunk{At: time.Now().UTC(), Text: line})

	signal := adapter.DetectSignal(line)
	if signal == nil {
		return "", false
	}
	*signals = append(*signals, *signal)
	return signalToStopReason(signal.Kind)
}

func renderShellInvocation(repoPath string, command AgentCommand) string {
	var b strings.Builder
	b.WriteString("cd ")
	b.WriteString(shellQuote(repoPath))
	b.WriteString(" && ")

	for _, kv := range command.Env {
		if strings.TrimSpace(kv.Key) == "" {
			continue
		}
		b.WriteString(kv.Key)
		b.WriteString("=")
		b.WriteString(shellQuote(kv.Value))
		b.WriteString(" ")
	}

	b.WriteString(shellQuote(command.Executable))
	for _, arg := range command.Args {
		b.WriteString(" ")
		b.WriteString(shellQuote(arg))
	}
	return b.String()
}

// shellQuote single-quotes value, escaping embedded quotes via the
// standard '"'"' technique (close quote, literal quote, reopen quote).
func shellQuote(value string) string {
	escaped := strings.ReplaceAll(value, "'", `'"'"'`)
	return "'" + escaped + "'"
}
