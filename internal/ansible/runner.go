package ansible

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"
)

// Invocation is one ansible-playbook command line, ready to be run by a
// Runner.
type Invocation struct {
	// Args is the full argument vector, Args[0] being the engine binary.
	Args []string
	// Env is added on top of the runner's own environment.
	Env map[string]string
	// Dir is the playbook directory. RemoteRunner ships it whole; LocalRunner
	// runs the engine in the caller's working directory.
	Dir string
	// Files are local files referenced from Args, optionally prefixed with @.
	Files []string

	Stdout io.Writer
	Stderr io.Writer
}

// Environ renders Env as sorted KEY=VALUE pairs.
func (inv Invocation) Environ() []string {
	keys := make([]string, 0, len(inv.Env))
	for k := range inv.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+inv.Env[k])
	}
	return env
}

func (inv Invocation) stdout() io.Writer {
	if inv.Stdout == nil {
		return os.Stdout
	}
	return inv.Stdout
}

func (inv Invocation) stderr() io.Writer {
	if inv.Stderr == nil {
		return os.Stderr
	}
	return inv.Stderr
}

// Runner executes an invocation and reports the engine's exit status. The
// error is reserved for failures to run the engine at all.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (int, error)
}

// waitDelay bounds how long output copying may outlive a killed engine.
const waitDelay = 2 * time.Second

// LocalRunner runs ansible-playbook on this machine.
type LocalRunner struct{}

// Run implements Runner.
func (LocalRunner) Run(ctx context.Context, inv Invocation) (int, error) {
	if len(inv.Args) == 0 {
		return -1, errors.New("empty command line")
	}

	cmd := exec.CommandContext(ctx, inv.Args[0], inv.Args[1:]...)
	cmd.Env = append(os.Environ(), inv.Environ()...)
	cmd.Stdout = inv.stdout()
	cmd.Stderr = inv.stderr()
	cmd.WaitDelay = waitDelay

	return exitStatus(ctx, inv.Args[0], cmd.Run())
}

// exitStatus turns the result of cmd.Run into an engine status. A run that
// finished before ctx was cancelled keeps its own outcome.
func exitStatus(ctx context.Context, bin string, err error) (int, error) {
	if err == nil {
		return RunOK, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// killed by a signal
			code = RunUnknownError
		}
		return code, nil
	}
	return -1, fmt.Errorf("failed to start %s: %w", bin, err)
}
