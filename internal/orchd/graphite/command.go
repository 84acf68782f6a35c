package graphite

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// AllowedAutoCommand is the closed set of subcommands the daemon may
// dispatch to `gt` automatically.
type AllowedAutoCommand string

const (
	CmdCreate            AllowedAutoCommand = "create"
	CmdRestack           AllowedAutoCommand = "restack"
	CmdAddAllForConflict AllowedAutoCommand = "add_all_for_conflict"
	CmdContinueConflict  AllowedAutoCommand = "continue_conflict"
	CmdLogShort          AllowedAutoCommand = "log_short"
	CmdStatus            AllowedAutoCommand = "status"
	CmdSubmit            AllowedAutoCommand = "submit"
	CmdSubmitStack       AllowedAutoCommand = "submit_stack"
)

// Output is the captured stdout/stderr of a successful gt invocation.
type Output struct {
	Stdout string
	Stderr string
}

// CLI wraps the `gt` binary at a fixed path.
type CLI struct {
	Binary string
}

// DefaultCLI resolves "gt" from $PATH.
func DefaultCLI() CLI { return CLI{Binary: "gt"} }

// RunAllowed validates args against allowed's contract and, only if that
// check passes, spawns the subprocess. A contract violation never
// reaches exec.Command.
func (c CLI) RunAllowed(cwd string, allowed AllowedAutoCommand, args ...string) (Output, error) {
	if err := validateContract(allowed, args); err != nil {
		return Output{}, err
	}

	cmd := exec.Command(c.Binary, args...)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	rendered := renderCommand(c.Binary, args)

	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			return Output{}, &Error{Kind: ErrCommandFailed, Command: rendered, Status: &code, Stdout: stdout.String(), Stderr: stderr.String()}
		}
		return Output{}, &Error{Kind: ErrIo, Command: rendered, Err: err}
	}

	return Output{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func validateContract(allowed AllowedAutoCommand, args []string) error {
	ok := false
	switch allowed {
	case CmdCreate:
		ok = len(args) == 2 && args[0] == "create" && strings.TrimSpace(args[1]) != ""
	case CmdRestack:
		ok = len(args) == 1 && args[0] == "restack"
	case CmdAddAllForConflict:
		ok = len(args) == 2 && args[0] == "add" && args[1] == "-A"
	case CmdContinueConflict:
		ok = len(args) == 1 && args[0] == "continue"
	case CmdLogShort:
		ok = len(args) == 2 && args[0] == "log" && args[1] == "short"
	case CmdStatus:
		ok = len(args) == 1 && args[0] == "status"
	case CmdSubmit:
		ok = len(args) == 1 && args[0] == "submit"
	case CmdSubmitStack:
		ok = len(args) == 2 && args[0] == "submit" && args[1] == "--stack"
	}

	if ok {
		return nil
	}
	return &Error{Kind: ErrContractViolation, Message: fmt.Sprintf("disallowed automated graphite invocation: %v", args)}
}

func renderCommand(binary string, args []string) string {
	return binary + " " + strings.Join(args, " ")
}
