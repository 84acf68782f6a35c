package verify

import (
	"bytes"
	"os/exec"
)

// shellOutput is the raw result of running one shell command line.
type shellOutput struct {
	ExitCode *int
	Stdout   string
	Stderr   string
	Success  bool
}

// runShellCommand runs `<shellBin> -lc <commandLine>` in cwd.
func runShellCommand(cwd, shellBin, commandLine string) (shellOutput, error) {
	cmd := exec.Command(shellBin, "-lc", commandLine)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	rendered := shellBin + " -lc " + commandLine

	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			return shellOutput{ExitCode: &code, Stdout: stdout.String(), Stderr: stderr.String(), Success: false}, nil
		}
		return shellOutput{}, &Error{Kind: ErrIo, Command: rendered, Err: err}
	}

	code := 0
	return shellOutput{ExitCode: &code, Stdout: stdout.String(), Stderr: stderr.String(), Success: true}, nil
}
