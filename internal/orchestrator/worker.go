package orchestrator

import (
	"bufio"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/rs/zerolog"
	"github.com/tasklift/autopilot/internal/logging"
)

// Worker errors.
var (
	ErrMissingTaskID  = errors.New("task id is required")
	ErrMissingCommand = errors.New("command is required")
	ErrNotStarted     = errors.New("worker not started")
)

const workerLineBytes = 256 * 1024

// ExitFunc is invoked once when the worker process exits.
type ExitFunc func(taskID string, exitCode int)

// Worker runs one PTY-wrapped worker process for a task. Worker programs
// are black boxes: the orchestrator only relies on arguments in, exit
// code out, and the side-channel metadata file.
type Worker struct {
	TaskID  string
	Command []string
	Dir     string
	Env     []string
	OnExit  ExitFunc

	logger zerolog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	pty  *os.File
	done chan struct{}
}

// NewWorker creates a Worker for the given task.
func NewWorker(taskID string, command []string) *Worker {
	return &Worker{
		TaskID:  taskID,
		Command: command,
		logger:  logging.Component("worker").With().Str("task_id", taskID).Logger(),
	}
}

// Start spawns the worker process under a PTY and begins streaming its
// output. The exit callback fires from a background goroutine.
func (w *Worker) Start() error {
	if w.TaskID == "" {
		return ErrMissingTaskID
	}
	if len(w.Command) == 0 {
		return ErrMissingCommand
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cmd := exec.Command(w.Command[0], w.Command[1:]...)
	cmd.Dir = w.Dir
	cmd.Env = append(os.Environ(), w.Env...)

	ptyFile, err := pty.Start(cmd)
	if err != nil {
		return err
	}

	w.cmd = cmd
	w.pty = ptyFile
	w.done = make(chan struct{})

	w.logger.Info().Strs("command", w.Command).Msg("worker started")

	go w.stream(ptyFile)
	go w.wait(cmd, ptyFile)

	return nil
}

// stream drains the PTY so the worker never blocks on output, logging
// lines at debug level.
func (w *Worker) stream(ptyFile *os.File) {
	scanner := bufio.NewScanner(ptyFile)
	scanner.Buffer(make([]byte, 0, 4096), workerLineBytes)
	for scanner.Scan() {
		w.logger.Debug().Str("line", scanner.Text()).Msg("worker output")
	}
}

func (w *Worker) wait(cmd *exec.Cmd, ptyFile *os.File) {
	err := cmd.Wait()
	ptyFile.Close()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	w.logger.Info().Int("exit_code", exitCode).Msg("worker exited")

	close(w.done)
	if w.OnExit != nil {
		w.OnExit(w.TaskID, exitCode)
	}
}

// Kill terminates the worker process. The exit callback still fires via
// the wait goroutine.
func (w *Worker) Kill() error {
	w.mu.Lock()
	cmd := w.cmd
	w.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}

	// SIGTERM first so the worker can flush its metadata file; SIGKILL
	// is left to the OS when the process group ignores it.
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

// Done returns a channel closed when the worker has exited.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}
