// Package sandbox runs package manager and toolchain commands inside an
// isolated workspace, natively or in a docker container.
package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
)

// Command is one process invocation.
type Command struct {
	Program string
	Args    []string
	Env     map[string]string
	Dir     string

	// Timeout kills the process once exceeded. Zero means no wall-clock limit.
	Timeout time.Duration
	// NoOutputTimeout kills the process when it stays silent longer. Zero disables it.
	NoOutputTimeout time.Duration

	// ProcessLine receives every output line. When Stdout is set it only sees stderr.
	ProcessLine func(line string)
	// Stdout, when set, receives the raw standard output.
	Stdout io.Writer
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Program + " " + strings.Join(c.Args, " "))
}

// ExitError reports a process that ran and exited with a non-zero status.
type ExitError struct {
	Program string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Program, e.Code)
}

var errNoOutput = errors.New("no output timeout")

// IsCommandFailure reports whether err came from a command that ran but did
// not succeed, as opposed to a command that could not be run at all.
func IsCommandFailure(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) || errors.Is(err, derrors.ErrCommandTimeout)
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands as host processes.
type ExecRunner struct{}

// Run starts the process, streams its output line by line and waits for it.
func (ExecRunner) Run(ctx context.Context, c Command) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	ctx, cancelCause := context.WithCancelCause(ctx)
	defer cancelCause(nil)

	// #nosec G204 -- program and arguments are assembled by the builder, not user input
	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), envList(c.Env)...)
	cmd.WaitDelay = 5 * time.Second

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	}

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return fmt.Errorf("start %s: %w", c.Program, err)
	}

	var watchdog *time.Timer
	if c.NoOutputTimeout > 0 {
		watchdog = time.AfterFunc(c.NoOutputTimeout, func() { cancelCause(errNoOutput) })
		defer watchdog.Stop()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			if watchdog != nil {
				watchdog.Reset(c.NoOutputTimeout)
			}
			if c.ProcessLine != nil {
				c.ProcessLine(scanner.Text())
			}
		}
		_, _ = io.Copy(io.Discard, pr)
	}()

	waitErr := cmd.Wait()
	_ = pw.Close()
	wg.Wait()

	if cause := context.Cause(ctx); cause != nil && waitErr != nil {
		switch {
		case errors.Is(cause, errNoOutput):
			return fmt.Errorf("%s: %w after %s without output", c.Program, derrors.ErrCommandTimeout, c.NoOutputTimeout)
		case errors.Is(cause, context.DeadlineExceeded):
			return fmt.Errorf("%s: %w after %s", c.Program, derrors.ErrCommandTimeout, c.Timeout)
		default:
			return fmt.Errorf("%s: %w", c.Program, cause)
		}
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Program: c.Program, Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("wait %s: %w", c.Program, waitErr)
	}
	return nil
}

// Output runs c and returns its combined output lines.
func Output(ctx context.Context, r Runner, c Command) ([]string, error) {
	var mu sync.Mutex
	var lines []string
	next := c.ProcessLine
	c.ProcessLine = func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
		if next != nil {
			next(line)
		}
	}
	err := r.Run(ctx, c)
	return lines, err
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
