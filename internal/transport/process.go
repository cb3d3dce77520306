package transport

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/wagiedev/enginebridge-go/internal/config"
	"github.com/wagiedev/enginebridge-go/internal/errors"
)

// maxStderrBufferSize is the maximum size for the stderr buffer.
// Stderr reading continues indefinitely (callback receives all lines),
// but the buffer stops growing after this limit to prevent unbounded memory usage.
const maxStderrBufferSize = 10 * 1024 * 1024 // 10MB

// ProcessConfig describes the engine host process to launch.
type ProcessConfig struct {
	// Path is the executable to run. Required.
	Path string

	// Args are passed to the executable.
	Args []string

	// Env entries are appended to the current process environment.
	Env []string

	// Dir is the working directory. Empty uses the current one.
	Dir string

	// Stderr receives each line the process writes to stderr.
	Stderr func(string)
}

// ProcessTransport implements Transport by spawning an engine host process
// and exchanging newline-delimited frames over its stdin and stdout.
type ProcessTransport struct {
	log    *slog.Logger
	cfg    ProcessConfig
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
	out    *lineWriter

	mu      sync.Mutex
	closing bool // Whether Close() has been called (intentional shutdown)
}

// Compile-time verification that ProcessTransport implements the Transport interface.
var _ config.Transport = (*ProcessTransport)(nil)

// NewProcessTransport creates a transport for the process described by cfg.
// The process is spawned by Start.
func NewProcessTransport(log *slog.Logger, cfg ProcessConfig) *ProcessTransport {
	return &ProcessTransport{
		log: log.With("component", "process_transport"),
		cfg: cfg,
	}
}

// Start spawns the process with stdin, stdout and stderr pipes.
//
// The process outlives ctx; it runs until it exits on its own or Close is
// called.
func (t *ProcessTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing || t.cmd != nil {
		return errors.ErrTransportNotReady
	}

	if t.cfg.Path == "" {
		return fmt.Errorf("start process: %w", exec.ErrNotFound)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	t.log.Info("Starting engine process", "path", t.cfg.Path)

	//nolint:gosec // G204: Subprocess launching with dynamic args is expected for engine hosts
	cmd := exec.Command(t.cfg.Path, t.cfg.Args...)
	cmd.Dir = t.cfg.Dir
	cmd.Env = append(os.Environ(), t.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		t.log.Error("Failed to start engine process", "error", err)

		return fmt.Errorf("start process: %w", err)
	}

	t.cmd = cmd
	t.stdout = stdout
	t.stderr = stderr
	t.out = newLineWriter(t.log, stdin)

	t.log.Info("Engine process started", "pid", cmd.Process.Pid)

	return nil
}

// ReadFrames reads frames from the process stdout.
//
// When stdout is exhausted the process is waited on. An abnormal exit that
// was not caused by Close is reported as a *errors.ProcessError carrying the
// buffered stderr output. Both channels are closed when the goroutine exits.
func (t *ProcessTransport) ReadFrames(ctx context.Context) (<-chan string, <-chan error) {
	frames := make(chan string)
	errs := make(chan error, 1)

	t.mu.Lock()
	cmd, stdout, stderr := t.cmd, t.stdout, t.stderr
	t.mu.Unlock()

	if cmd == nil {
		errs <- errors.ErrTransportNotReady

		close(frames)
		close(errs)

		return frames, errs
	}

	var (
		stderrWg     sync.WaitGroup
		stderrMu     sync.Mutex
		stderrBuffer strings.Builder
	)

	// Stderr must be fully read before Wait.
	// See: https://pkg.go.dev/os/exec#Cmd.StderrPipe
	stderrWg.Go(func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()

			stderrMu.Lock()

			if stderrBuffer.Len() < maxStderrBufferSize {
				if stderrBuffer.Len() > 0 {
					stderrBuffer.WriteString("\n")
				}

				stderrBuffer.WriteString(line)
			}

			stderrMu.Unlock()

			if t.cfg.Stderr != nil {
				t.cfg.Stderr(line)
			}
		}

		if err := scanner.Err(); err != nil {
			t.log.Debug("Stderr scanner error", "error", err)
		}
	})

	go func() {
		defer close(frames)
		defer close(errs)
		defer t.log.Debug("ReadFrames goroutine stopped")

		if err := scanFrames(ctx, t.log, stdout, frames); err != nil && !t.isClosing() {
			errs <- err

			return
		}

		stderrWg.Wait()

		t.log.Debug("Waiting for engine process to exit")

		err := cmd.Wait()
		if err == nil {
			t.log.Info("Engine process exited successfully")

			return
		}

		if t.isClosing() {
			t.log.Debug("Engine process terminated during shutdown")

			return
		}

		stderrMu.Lock()
		stderrOutput := strings.TrimSpace(stderrBuffer.String())
		stderrMu.Unlock()

		exitCode := -1

		if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
			exitCode = exitErr.ExitCode()
		}

		t.log.Error("Engine process exited with error", "exit_code", exitCode, "stderr", stderrOutput)

		errs <- &errors.ProcessError{
			ExitCode: exitCode,
			Stderr:   stderrOutput,
			Err:      err,
		}
	}()

	return frames, errs
}

// SendFrame writes one frame to the process stdin.
//
// This method is safe for concurrent use. If ctx is cancelled during a
// blocked write, stdin is closed and later calls return ErrWriterClosed.
func (t *ProcessTransport) SendFrame(ctx context.Context, frame string) error {
	t.mu.Lock()
	out, closing := t.out, t.closing
	t.mu.Unlock()

	if out == nil || closing {
		return errors.ErrTransportNotReady
	}

	return out.write(ctx, frame)
}

// CloseInput closes the process stdin to signal that no more frames follow.
// The process keeps running and may still send frames.
func (t *ProcessTransport) CloseInput() error {
	t.mu.Lock()
	out := t.out
	t.mu.Unlock()

	if out == nil {
		return nil
	}

	t.log.Debug("Closing engine process stdin")

	return out.close()
}

// IsReady returns true while the process is running and stdin is open.
func (t *ProcessTransport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cmd != nil && t.cmd.Process != nil && !t.closing && !t.out.closed.Load()
}

// Close kills the process. It's safe to call Close multiple times or on an
// already terminated process.
func (t *ProcessTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing {
		return nil
	}

	t.closing = true

	if t.out != nil {
		_ = t.out.close()
	}

	if t.cmd != nil && t.cmd.Process != nil {
		t.log.Debug("Killing engine process", "pid", t.cmd.Process.Pid)

		if err := t.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill engine process (pid %d): %w", t.cmd.Process.Pid, err)
		}
	}

	return nil
}

func (t *ProcessTransport) isClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closing
}
