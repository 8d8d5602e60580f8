package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"time"

	"github.com/graceinfra/shipyard/types"
)

const ShellActionName = "shell"

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ShellAction runs the step's "run" script. "with.shell" overrides the
// default interpreter (sh, or cmd on Windows).
type ShellAction struct{}

func (a *ShellAction) Name() string { return ShellActionName }

func (a *ShellAction) Validate(step *types.Step) []string {
	if step.Run == "" && step.With["run"] == "" {
		return []string{"shell action requires a script ('run' or 'with.run')"}
	}
	return nil
}

func (a *ShellAction) Execute(ctx context.Context, sc *StepContext) error {
	script := sc.Step.Run
	if script == "" {
		script = sc.Step.With["run"]
	}
	sc.Logger.Debug().Str("shell", sc.Step.With["shell"]).Msg("Running shell script")
	return RunShell(ctx, Command{
		Script: script,
		Shell:  sc.Step.With["shell"],
		Dir:    sc.WorkDir,
		Env:    sc.Env,
		Output: sc.Output,
	})
}

// Command is a shell invocation.
type Command struct {
	Script string
	Shell  string
	Dir    string
	Env    []string
	Output io.Writer // receives stdout and stderr
}

// RunShell runs c to completion. A non-zero exit is an *ExitError; context
// expiry kills the process and returns the context's error.
func RunShell(ctx context.Context, c Command) error {
	name, args := shellArgs(c.Shell, c.Script)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdout = c.Output
	cmd.Stderr = c.Output
	// Children that inherit the pipes must not keep Wait blocked after a kill.
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	return nil
}

func shellArgs(shell, script string) (string, []string) {
	switch {
	case shell == "" && runtime.GOOS == "windows":
		return "cmd", []string{"/C", script}
	case shell == "":
		return "sh", []string{"-c", script}
	case shell == "cmd":
		return "cmd", []string{"/C", script}
	case shell == "pwsh" || shell == "powershell":
		return shell, []string{"-NoProfile", "-Command", script}
	default:
		return shell, []string{"-c", script}
	}
}
