package gitdriver

import (
	"bytes"
	"os/exec"
	"strings"
)

// CLI wraps the git binary at a fixed path, matching the subprocess
// invocation style of zjrosen/perles's internal/git executor: a thin
// wrapper that shells out and classifies the result, nothing more.
type CLI struct {
	Binary string
}

// DefaultCLI resolves "git" from $PATH.
func DefaultCLI() CLI { return CLI{Binary: "git"} }

// Output is the captured stdout/stderr of a successful git invocation.
type Output struct {
	Stdout string
	Stderr string
}

// Run executes git with args in cwd. A non-zero exit is CommandFailed; a
// failure to spawn at all is Io; non-UTF-8 output on either stream is
// NonUtf8Output (go's exec already hands back valid UTF-8-checked bytes
// are not guaranteed, so this mirrors the Rust client's explicit check).
func (c CLI) Run(cwd string, args ...string) (Output, error) {
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
			return Output{}, commandFailedErr(rendered, &code, stdout.String(), stderr.String())
		}
		return Output{}, ioErr(rendered, err)
	}

	out := stdout.String()
	errOut := stderr.String()
	if !isValidUTF8(out) {
		return Output{}, &Error{Kind: ErrNonUtf8Output, Command: rendered, Stream: "stdout"}
	}
	if !isValidUTF8(errOut) {
		return Output{}, &Error{Kind: ErrNonUtf8Output, Command: rendered, Stream: "stderr"}
	}

	return Output{Stdout: out, Stderr: errOut}, nil
}

func isValidUTF8(s string) bool {
	return len(s) == len(strings.ToValidUTF8(s, ""))
}

func renderCommand(binary string, args []string) string {
	return binary + " " + strings.Join(args, " ")
}
