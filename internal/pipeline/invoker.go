// Package pipeline runs the external document-processing pipeline as a child process.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrStart is wrapped when the pipeline process could not be started at all.
var ErrStart = errors.New("pipeline start failed")

// Result captures one pipeline run. A non-zero ExitCode is a pipeline
// failure, not an error of the invoker.
type Result struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// CommandLine joins the argument vector for display.
func (r *Result) CommandLine() string {
	return strings.Join(r.Args, " ")
}

// Invoker builds and runs `<command...> --input <path> --output <dir> [--prompt <text>]`.
type Invoker struct {
	command []string
	workDir string
	timeout time.Duration
}

// NewInvoker takes the executable plus any fixed leading arguments. A zero
// timeout leaves the run bounded only by the caller's context.
func NewInvoker(command []string, workDir string, timeout time.Duration) (*Invoker, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("pipeline command is empty")
	}
	return &Invoker{
		command: append([]string(nil), command...),
		workDir: workDir,
		timeout: timeout,
	}, nil
}

// BuildArgs returns the full argument vector, executable first.
func (i *Invoker) BuildArgs(inputPath, outputDir, prompt string) []string {
	args := append([]string(nil), i.command...)
	args = append(args,
		"--input", inputPath,
		"--output", outputDir,
	)
	if prompt != "" {
		args = append(args, "--prompt", prompt)
	}
	return args
}

// Run blocks until the child exits, the timeout fires or ctx is done. Hitting
// the invoker timeout or a deadline on ctx yields a TimedOut result; an
// explicit cancellation of ctx kills the child and returns an error wrapping
// context.Canceled.
func (i *Invoker) Run(ctx context.Context, inputPath, outputDir, prompt string) (*Result, error) {
	args := i.BuildArgs(inputPath, outputDir, prompt)

	runCtx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = i.workDir
	// Grandchildren holding the pipes open must not stall Wait after a kill.
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Args:     args,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil && runCtx.Err() != nil {
		if !errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("pipeline %s interrupted: %w", args[0], runCtx.Err())
		}
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("%w: %s: %v", ErrStart, args[0], err)
	}
	return result, nil
}
