// Package cliexec runs backend CLI processes: one-shot commands for auth
// probes, line-streaming sessions for completions, and a checkout pool for
// persistent clients.
package cliexec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Mathews-Tom/SubLLM/types"
)

const (
	// maxLineBytes bounds a single stdout record. Backend CLIs emit one JSON
	// object per line; large tool outputs can push a record past the bufio
	// default of 64KiB.
	maxLineBytes = 4 * 1024 * 1024

	// stderrTailBytes bounds captured stderr, keeping the most recent output
	// for error reports.
	stderrTailBytes = 8 * 1024

	// reapDelay is how long Wait allows a killed process to exit before the
	// runtime forcibly closes its pipes.
	reapDelay = 5 * time.Second
)

// Spec describes one backend CLI invocation.
type Spec struct {
	Path string   // binary path or bare name resolved via PATH
	Args []string // arguments, excluding the binary itself
	Env  map[string]string
	Dir  string

	// Stdin is written to the process and the pipe closed before reading
	// output. Leave empty for argv-only invocations.
	Stdin string

	// Interactive keeps the stdin pipe open for Write calls. Used by
	// persistent clients that exchange framed records over stdio.
	Interactive bool
}

func (s Spec) environ() []string {
	if len(s.Env) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range s.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// tailBuffer keeps the last tailBytes of everything written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - stderrTailBytes; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}

// Session is one spawned backend process with line-oriented stdout. The
// lifecycle is spawn, consume Lines, then Wait or Release; Release is safe on
// every exit path and idempotent.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	stderr *tailBuffer

	scanMu  sync.Mutex
	scanErr error

	releaseOnce sync.Once
	waitOnce    sync.Once
	waitErr     error
}

// Spawn starts the process described by spec. The context bounds the whole
// session: when it expires the process is killed and Wait reports a timeout.
func Spawn(ctx context.Context, spec Spec) (*Session, error) {
	if spec.Path == "" {
		return nil, types.NewError(types.ErrSpawnFailure, "no binary configured")
	}

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Env = spec.environ()
	cmd.Dir = spec.Dir
	cmd.WaitDelay = reapDelay
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}

	s := &Session{
		cmd:    cmd,
		lines:  make(chan string, 64),
		stderr: &tailBuffer{},
	}
	cmd.Stderr = s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, types.NewError(types.ErrSpawnFailure, "stdout pipe").WithCause(err)
	}

	var stdin io.WriteCloser
	if spec.Interactive || spec.Stdin != "" {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, types.NewError(types.ErrSpawnFailure, "stdin pipe").WithCause(err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, types.Errorf(types.ErrSpawnFailure,
			"failed to start %s", spec.Path).WithCause(err)
	}

	if spec.Interactive {
		s.stdin = stdin
	} else if spec.Stdin != "" {
		go func() {
			_, _ = io.WriteString(stdin, spec.Stdin)
			_ = stdin.Close()
		}()
	}

	go s.scan(stdout)
	return s, nil
}

func (s *Session) scan(r io.Reader) {
	defer close(s.lines)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		s.lines <- sc.Text()
	}
	if err := sc.Err(); err != nil {
		s.scanMu.Lock()
		s.scanErr = err
		s.scanMu.Unlock()
	}
}

// Lines yields stdout one line at a time. The channel closes at EOF; call
// Wait afterwards to learn how the process exited.
func (s *Session) Lines() <-chan string {
	return s.lines
}

// Write sends one framed record to an interactive session's stdin. A write
// against a dead process reports a broken pipe.
func (s *Session) Write(record string) error {
	if s.stdin == nil {
		return types.NewError(types.ErrInternalError, "session stdin is not interactive")
	}
	if _, err := io.WriteString(s.stdin, record); err != nil {
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
			return types.NewError(types.ErrBrokenPipe, "backend process closed stdin").WithCause(err)
		}
		return types.NewError(types.ErrBrokenPipe, "stdin write failed").WithCause(err)
	}
	return nil
}

// Wait reaps the process and maps its exit into the failure taxonomy:
// deadline expiry is a timeout, a non-zero exit is an abnormal exit carrying
// the stderr tail, and a truncated stdout read is a broken pipe. A clean exit
// returns nil. Wait must follow Lines draining and is idempotent.
func (s *Session) Wait(ctx context.Context) error {
	s.waitOnce.Do(func() {
		err := s.cmd.Wait()

		if ctx.Err() != nil {
			s.waitErr = types.NewError(types.ErrTimeout,
				"backend process killed by deadline").WithCause(ctx.Err()).WithRetryable(true)
			return
		}

		s.scanMu.Lock()
		scanErr := s.scanErr
		s.scanMu.Unlock()
		if scanErr != nil {
			s.waitErr = types.NewError(types.ErrBrokenPipe,
				"backend stdout read failed").WithCause(scanErr)
			return
		}

		if err != nil {
			msg := fmt.Sprintf("backend process exited abnormally: %v", err)
			if tail := s.stderr.String(); tail != "" {
				msg += ": " + tail
			}
			s.waitErr = types.NewError(types.ErrAbnormalExit, msg).WithCause(err)
		}
	})
	return s.waitErr
}

// Stderr returns the tail of the process's stderr captured so far.
func (s *Session) Stderr() string {
	return s.stderr.String()
}

// Release kills the process if still running and reaps it. Idempotent and
// safe concurrently with Wait; providers defer it on every path.
func (s *Session) Release() {
	s.releaseOnce.Do(func() {
		if s.stdin != nil {
			_ = s.stdin.Close()
		}
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		go func() {
			s.waitOnce.Do(func() {
				s.waitErr = s.cmd.Wait()
			})
		}()
	})
}

// Run executes a short-lived command and returns its trimmed stdout. It backs
// auth probes and other status subcommands, where only the combined result
// matters. A non-zero exit comes back as an abnormal-exit error with the
// output attached; the caller decides whether that means "not logged in".
func Run(ctx context.Context, spec Spec) (string, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Env = spec.environ()
	cmd.Dir = spec.Dir
	cmd.WaitDelay = reapDelay
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	var stdout bytes.Buffer
	stderr := &tailBuffer{}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return "", types.Errorf(types.ErrSpawnFailure,
			"failed to start %s", spec.Path).WithCause(err)
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", types.NewError(types.ErrTimeout,
				"command killed by deadline").WithCause(ctx.Err())
		}
		msg := fmt.Sprintf("%s exited abnormally: %v", spec.Path, err)
		if tail := stderr.String(); tail != "" {
			msg += ": " + tail
		}
		return strings.TrimSpace(stdout.String()),
			types.NewError(types.ErrAbnormalExit, msg).WithCause(err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// LookPath reports whether a binary is resolvable, for auth probes that treat
// a missing CLI as "not configured".
func LookPath(path string) bool {
	_, err := exec.LookPath(path)
	return err == nil
}
