// internal/executor/runner.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/pentest-crew/internal/config"
)

// DefaultTimeout bounds a single scan command.
const DefaultTimeout = time.Hour

// ErrTimeout is returned when a command exceeded the runner's wall-clock limit.
var ErrTimeout = errors.New("command timed out")

// Result is the outcome of one command.
type Result struct {
	Command   string
	Output    string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Summary renders the result the way the executor reports it to the group chat.
func (r Result) Summary() string {
	var b strings.Builder
	switch {
	case r.TimedOut:
		fmt.Fprintf(&b, "exitcode: %d (execution timed out after %s)\n", r.ExitCode, r.Duration.Round(time.Second))
	case r.ExitCode == 0:
		b.WriteString("exitcode: 0 (execution succeeded)\n")
	default:
		fmt.Fprintf(&b, "exitcode: %d (execution failed)\n", r.ExitCode)
	}
	out := strings.TrimSpace(r.Output)
	if out != "" {
		b.WriteString("Code output: ")
		b.WriteString(out)
		if r.Truncated {
			b.WriteString("\n[output truncated]")
		}
	}
	return b.String()
}

// Runner executes shell commands one at a time in a fixed working directory.
// It knows nothing about approval; callers must only hand it approved commands.
type Runner struct {
	shell     string
	workDir   string
	timeout   time.Duration
	maxOutput int
	follow    bool
	sem       *semaphore.Weighted
	logger    *zap.Logger
	now       func() time.Time
}

// NewRunner builds a runner from the executor configuration.
func NewRunner(cfg config.ExecutorConfig, workDir string, logger *zap.Logger) *Runner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	shell := cfg.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	return &Runner{
		shell:     shell,
		workDir:   workDir,
		timeout:   timeout,
		maxOutput: cfg.MaxOutputBytes,
		follow:    cfg.FollowOutput,
		sem:       semaphore.NewWeighted(1),
		logger:    logger.Named("executor"),
		now:       time.Now,
	}
}

// WorkDir returns the directory commands run in.
func (r *Runner) WorkDir() string { return r.workDir }

// Run executes command with "<shell> -c". A non-zero exit is reported in the
// result, not as an error. ErrTimeout is returned alongside a TimedOut result,
// and cancellation of ctx is returned as ctx.Err().
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result{Command: command, ExitCode: -1}, err
	}
	defer r.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output := newCappedBuffer(r.maxOutput)
	cmd := exec.CommandContext(runCtx, r.shell, "-c", command)
	cmd.Dir = r.workDir
	cmd.Stdout = output
	cmd.Stderr = output
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	cmd.WaitDelay = 5 * time.Second

	if r.follow {
		if target := OutputTarget(command); target != "" {
			stop := r.followOutput(resolvePath(r.workDir, target))
			defer stop()
		}
	}

	r.logger.Info("Executing command", zap.String("command", command), zap.Duration("timeout", r.timeout))
	start := r.now()
	runErr := cmd.Run()
	result := Result{
		Command:   command,
		Output:    output.String(),
		Truncated: output.Truncated(),
		Duration:  r.now().Sub(start),
	}

	if ctx.Err() != nil {
		result.ExitCode = -1
		return result, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		r.logger.Warn("Command timed out", zap.String("command", command), zap.Duration("timeout", r.timeout))
		return result, fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		result.ExitCode = 0
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
		result.Output = strings.TrimSpace(result.Output + "\n" + runErr.Error())
	}

	r.logger.Info("Command finished",
		zap.String("command", command),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}
