package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	EnvModeNone     = "none"
	EnvModeRun      = "run"
	EnvModeActivate = "activate"
)

// EnvSpec describes the isolated environment (conda / micromamba prefix) a tool lives in.
//
// With Mode "run" the tool is started as `<exe> run -p <prefix> <tool> <args...>`.
// With Mode "activate" the shell hook is evaluated first and the tool is exec'd with its
// arguments passed positionally, so nothing from Args is ever parsed by the shell.
// An empty Prefix, or Mode "none", runs the tool straight from PATH.
type EnvSpec struct {
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Exe    string `mapstructure:"exe" yaml:"exe"`
	Shell  string `mapstructure:"shell" yaml:"shell"`
	Mode   string `mapstructure:"mode" yaml:"mode"`
}

func (e EnvSpec) Validate() error {
	switch e.Mode {
	case "", EnvModeNone, EnvModeRun, EnvModeActivate:
	default:
		return fmt.Errorf("unknown environment mode %q", e.Mode)
	}
	if e.Prefix != "" && e.Mode != EnvModeNone && e.Exe == "" {
		return fmt.Errorf("environment %s: exe is required", e.Prefix)
	}
	return nil
}

func (e EnvSpec) direct() bool {
	return e.Prefix == "" || e.Mode == "" || e.Mode == EnvModeNone
}

// Command is one external tool call.
type Command struct {
	Tool string
	Args []string
	Env  EnvSpec
	Dir  string
}

// Argv returns the discrete argument list that is handed to exec.
func (c Command) Argv() ([]string, error) {
	if c.Tool == "" {
		return nil, errors.New("command has no tool")
	}
	if err := c.Env.Validate(); err != nil {
		return nil, err
	}
	if c.Env.direct() {
		return append([]string{c.Tool}, c.Args...), nil
	}

	switch c.Env.Mode {
	case EnvModeRun:
		argv := []string{c.Env.Exe, "run", "-p", c.Env.Prefix, c.Tool}
		return append(argv, c.Args...), nil
	case EnvModeActivate:
		shell := c.Env.Shell
		if shell == "" {
			shell = "bash"
		}
		// $0 is the tool name, "$@" its arguments; the script itself is fixed text.
		script := fmt.Sprintf(`eval "$(%s shell hook --shell %s)" && %s activate %s && exec "$0" "$@"`,
			shellQuote(c.Env.Exe), shellQuote(shell), shellQuote(c.Env.Exe), shellQuote(c.Env.Prefix))
		argv := []string{shell, "-c", script, c.Tool}
		return append(argv, c.Args...), nil
	}
	return nil, fmt.Errorf("unknown environment mode %q", c.Env.Mode)
}

// String renders the argv for logging only.
func (c Command) String() string {
	argv, err := c.Argv()
	if err != nil {
		return c.Tool + " " + strings.Join(c.Args, " ")
	}
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`&|;<>()*?[]{}#~!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r Result) OK() bool { return r.ExitCode == 0 }

// ToolRunner executes a Command synchronously. Implementations return a nil error
// for a tool that ran and exited non-zero; callers inspect Result.ExitCode.
type ToolRunner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// killWaitDelay bounds how long Run waits for output pipes after the process
// group has been killed.
const killWaitDelay = 5 * time.Second

// ExecRunner runs commands with os/exec, each in its own process group.
// Timeout of zero means no limit.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	argv, err := c.Argv()
	if err != nil {
		return Result{}, err
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// wrappers (micromamba run, bash -c) leave the tool as a grandchild: kill the whole group
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killWaitDelay
	cmd.Dir = c.Dir
	cmd.Env = os.Environ()
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	res := Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	if runErr == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", c.Tool, ctxErr)
	}
	if errors.Is(runErr, exec.ErrWaitDelay) {
		// the tool exited but something it started kept the output pipes open
		res.ExitCode = cmd.ProcessState.ExitCode()
		return res, nil
	}
	var exitError *exec.ExitError
	if errors.As(runErr, &exitError) {
		res.ExitCode = exitError.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("starting %s: %w", c.Tool, runErr)
}

// ToolError is what stages return for an item whose tool exited non-zero.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, msg)
}

// RunChecked runs c and turns a non-zero exit into a *ToolError.
func RunChecked(ctx context.Context, runner ToolRunner, c Command) (Result, error) {
	res, err := runner.Run(ctx, c)
	if err != nil {
		return res, err
	}
	if !res.OK() {
		return res, &ToolError{Tool: c.Tool, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}

// Version runs `<tool> --version` inside env and returns the trimmed output.
func Version(ctx context.Context, runner ToolRunner, tool string, env EnvSpec) (string, error) {
	res, err := RunChecked(ctx, runner, Command{Tool: tool, Args: []string{"--version"}, Env: env})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// VersionLog logs a tool's version the first time Log is called and never again,
// so a run that skips every item does not start the tool at all.
type VersionLog struct {
	once sync.Once
}

func (v *VersionLog) Log(ctx context.Context, runner ToolRunner, tool string, env EnvSpec, log *slog.Logger) {
	v.once.Do(func() {
		version, err := Version(ctx, runner, tool, env)
		if err != nil {
			log.Error("Failed to get tool version", "tool", tool, "error", err)
			return
		}
		log.Info("Tool version", "tool", tool, "version", version)
	})
}

// RunnerFunc adapts a function to ToolRunner.
type RunnerFunc func(ctx context.Context, cmd Command) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Result, error) { return f(ctx, cmd) }
