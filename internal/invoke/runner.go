// Package invoke executes stage operations as bounded subprocesses.
//
// An invocation enforces a wall-clock timeout and per-stream byte caps on
// captured output. The full, uncapped output always lands in a per-invocation
// report file, so nothing is lost when the in-memory copy is truncated; the
// result references the report by path rather than inlining overflow.
//
// Operations propose artifact mutations by writing a JSON action file to the
// path handed to them in the environment. The invoker collects those records
// for the apply engine; it never mutates an artifact itself.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// TimeoutExitCode is reported when the subprocess exceeds its wall-clock
// budget, matching the shell convention for timed-out commands.
const TimeoutExitCode = 124

// ErrTimeout indicates the subprocess exceeded its wall-clock budget. It is
// fatal for the invocation; callers must not retry silently.
var ErrTimeout = errors.New("stage operation timed out")

// CommandSpec describes one bounded subprocess run.
type CommandSpec struct {
	Argv           []string
	Dir            string
	Env            []string
	Timeout        time.Duration
	MaxStdoutBytes int
	MaxStderrBytes int

	// Spill receives the complete, uncapped output streams. Nil writers
	// discard.
	SpillStdout io.Writer
	SpillStderr io.Writer
}

// CommandResult captures the observable outcome of one subprocess run.
type CommandResult struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	TimedOut        bool
}

// Ok reports whether the subprocess exited zero.
func (r *CommandResult) Ok() bool {
	return r.ExitCode == 0
}

// CommandRunner runs one bounded subprocess. The production implementation
// shells out; tests substitute their own.
type CommandRunner interface {
	Run(ctx context.Context, spec CommandSpec) (*CommandResult, error)
}

// ExecRunner is the os/exec-backed [CommandRunner].
type ExecRunner struct{}

// Run executes the spec's argv, enforcing the timeout and byte caps. A
// timeout yields a populated result with [TimeoutExitCode] and an error
// wrapping [ErrTimeout]; any other failure to exit zero is reported through
// the result alone.
func (ExecRunner) Run(ctx context.Context, spec CommandSpec) (*CommandResult, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("empty command")
	}
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	stdout := newCapBuffer(spec.MaxStdoutBytes, spec.SpillStdout)
	stderr := newCapBuffer(spec.MaxStderrBytes, spec.SpillStderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()

	result := &CommandResult{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = TimeoutExitCode
		msg := fmt.Sprintf("command timed out after %s", spec.Timeout)
		result.Stderr = strings.TrimSpace(result.Stderr + "\n" + msg)
		return result, fmt.Errorf("%w after %s", ErrTimeout, spec.Timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to run %s: %w", spec.Argv[0], err)
	}
	return result, nil
}

// capBuffer retains at most max bytes in memory, forwarding every byte to the
// spill writer. Once the cap is hit, a truncation note replaces the tail.
type capBuffer struct {
	mu        sync.Mutex
	max       int
	buf       strings.Builder
	truncated bool
	spill     io.Writer
}

func newCapBuffer(max int, spill io.Writer) *capBuffer {
	if spill == nil {
		spill = io.Discard
	}
	return &capBuffer{max: max, spill: spill}
}

func (b *capBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.spill.Write(p); err != nil {
		return 0, err
	}
	if b.max <= 0 || b.buf.Len() >= b.max {
		if len(p) > 0 && b.max > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	room := b.max - b.buf.Len()
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
	} else {
		b.buf.Write(p)
	}
	return len(p), nil
}

func (b *capBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.truncated {
		return b.buf.String()
	}
	return fmt.Sprintf("%s\n[output truncated to %d bytes]", strings.TrimRight(b.buf.String(), "\n"), b.max)
}

func (b *capBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
