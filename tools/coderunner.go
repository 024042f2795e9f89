package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// maxRunnerOutput caps what a code run may feed back into the
// conversation.
const maxRunnerOutput = 16 * 1024

// Runner executes model-written code in a sandbox. It is a
// security-sensitive external collaborator: the loop's only obligations
// are to invoke it with a bounded timeout and to treat whatever comes
// back as an opaque string. Output is never interpreted or trusted.
type Runner interface {
	// Run executes code and returns its combined output.
	Run(ctx context.Context, code string) (string, error)
}

// ExecRunner shells out to a configured sandbox interpreter, feeding the
// code on stdin. The command is expected to be already confined (chroot,
// container, restricted interpreter); ExecRunner adds only the timeout
// and the output cap.
type ExecRunner struct {
	// Command is the interpreter invocation, e.g.
	// []string{"sandbox-exec", "python3", "-I", "-"}.
	Command []string

	// Timeout bounds one execution. Zero means 30 seconds.
	Timeout time.Duration
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, code string) (string, error) {
	if len(r.Command) == 0 {
		return "", errors.New("no sandbox command configured")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...)
	cmd.Stdin = strings.NewReader(code)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	text := out.String()
	if len(text) > maxRunnerOutput {
		text = text[:maxRunnerOutput] + "\n... (output truncated)"
	}
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("code execution timed out after %s", timeout)
	}
	if err != nil {
		// The interpreter's own diagnostics are part of the observable
		// output; return them with the failure.
		return "", fmt.Errorf("code execution failed: %v\n%s", err, text)
	}
	return text, nil
}

// DisabledRunner rejects every execution. Use it when the deployment has
// no sandbox available; the model receives the rejection as a normal
// tool error and can fall back to other tools.
type DisabledRunner struct{}

// Run implements Runner.
func (DisabledRunner) Run(context.Context, string) (string, error) {
	return "", errors.New("code execution is disabled in this deployment")
}
