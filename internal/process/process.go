package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/formatsync/internal/logging"
)

// Output sources passed to a LineHandler.
const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
)

// LineHandler receives each output line of the subprocess.
type LineHandler func(source, line string)

// ExitReason tells why Run returned.
type ExitReason int

const (
	ExitReasonProcessExit ExitReason = iota
	ExitReasonCancelled
	ExitReasonStartFailed
)

func (r ExitReason) String() string {
	switch r {
	case ExitReasonProcessExit:
		return "exited"
	case ExitReasonCancelled:
		return "cancelled"
	case ExitReasonStartFailed:
		return "start-failed"
	default:
		return "unknown"
	}
}

// Result describes how a run ended.
type Result struct {
	ExitCode int
	Reason   ExitReason
	Err      error
}

// killedExitCode is reported when the process had to be killed.
const killedExitCode = 137

// maxLineLength bounds a single output line.
const maxLineLength = 1 << 20

// Process supervises a single subprocess run.
type Process struct {
	id              string
	command         string
	logger          logging.Logger
	handler         LineHandler
	gracefulTimeout time.Duration // SIGINT to SIGKILL
	killTimeout     time.Duration // SIGKILL to giving up

	mu  sync.Mutex
	cmd *exec.Cmd
}

// New creates a process. handler may be nil.
func New(id, command string, logger logging.Logger, handler LineHandler) *Process {
	return &Process{
		id:              id,
		command:         command,
		logger:          logger,
		handler:         handler,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// Command returns the command string.
func (p *Process) Command() string {
	return p.command
}

// PID returns the pid of the running process, or 0.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Run starts the subprocess and blocks until it exits or ctx is done.
func (p *Process) Run(ctx context.Context) Result {
	done, err := p.start()
	if err != nil {
		return Result{ExitCode: 1, Reason: ExitReasonStartFailed, Err: err}
	}

	select {
	case <-ctx.Done():
		p.logger.Info("Stopping process", "id", p.id)
		p.signal(syscall.SIGINT)
		return Result{ExitCode: p.waitForExit(done), Reason: ExitReasonCancelled}
	case waitErr := <-done:
		code := exitCode(waitErr)
		if waitErr != nil && code == 1 {
			p.logger.Error("Process exited with error", "id", p.id, "error", waitErr)
		}
		p.logger.Info("Process exited", "id", p.id, "exit_code", code)
		return Result{ExitCode: code, Reason: ExitReasonProcessExit, Err: waitErr}
	}
}

// start launches the command. The returned channel yields the Wait result
// once both output streams are drained.
func (p *Process) start() (<-chan error, error) {
	args, err := ParseCommand(p.command)
	if err != nil {
		p.logger.Error("Failed to parse command", "id", p.id, "error", err)
		return nil, err
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "id", p.id, "error", err, "command", p.command)
		return nil, err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", p.command)

	var streams sync.WaitGroup
	streams.Add(2)
	go p.stream(stdout, SourceStdout, &streams)
	go p.stream(stderr, SourceStderr, &streams)

	done := make(chan error, 1)
	go func() {
		streams.Wait()
		done <- cmd.Wait()
	}()
	return done, nil
}

func (p *Process) stream(r io.Reader, source string, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	for scanner.Scan() {
		if p.handler != nil {
			p.handler(source, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

// signal delivers sig to the whole process group.
func (p *Process) signal(sig syscall.Signal) {
	pid := p.PID()
	if pid == 0 {
		return
	}
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("Failed to signal process", "id", p.id, "signal", sig.String(), "error", err)
	}
}

// waitForExit waits for a graceful exit, then kills the group.
func (p *Process) waitForExit(done <-chan error) int {
	select {
	case err := <-done:
		return exitCode(err)
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
	p.signal(syscall.SIGKILL)

	select {
	case <-done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id)
	}
	return killedExitCode
}

// exitCode returns 0 for nil, the exit status for *exec.ExitError, and 1 otherwise.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return killedExitCode
	}
	return 1
}
