// Package command runs external programs such as the platform eject tools,
// capturing their output and optionally retrying on failure.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result holds the output of one command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a program with arguments.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// Options configures execution behavior.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	RetryOn    func(error) bool
	Timeout    time.Duration
	Env        map[string]string
}

// Option modifies Options.
type Option func(*Options)

// WithRetry retries a failed command up to n more times.
func WithRetry(n int, delay time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = n
		o.RetryDelay = delay
	}
}

// WithRetryCondition limits retries to errors for which fn returns true.
func WithRetryCondition(fn func(error) bool) Option {
	return func(o *Options) { o.RetryOn = fn }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithEnvVar adds an environment variable to the child process.
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		o.Env[key] = value
	}
}

// Exec runs commands with os/exec.
type Exec struct {
	opts Options
}

// New returns an Exec configured by opts.
func New(opts ...Option) *Exec {
	o := Options{RetryDelay: time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return &Exec{opts: o}
}

// Run executes name with args, retrying as configured. The returned Result
// is from the last attempt and is non-nil whenever the program started.
func (e *Exec) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	var (
		res *Result
		err error
	)
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return res, fmt.Errorf("cancelled during retry: %w", ctx.Err())
			case <-time.After(e.opts.RetryDelay):
			}
		}
		res, err = e.runOnce(ctx, name, args)
		if err == nil {
			return res, nil
		}
		if e.opts.RetryOn != nil && !e.opts.RetryOn(err) {
			break
		}
	}
	return res, err
}

func (e *Exec) runOnce(ctx context.Context, name string, args []string) (*Result, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if len(e.opts.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range e.opts.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return res, nil
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}

	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		return res, fmt.Errorf("%s: %w", name, runErr)
	}
	return res, fmt.Errorf("%s: %w: %s", name, runErr, msg)
}

// Expand substitutes {key} placeholders in each argument.
func Expand(argv []string, vars map[string]string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		for k, v := range vars {
			a = strings.ReplaceAll(a, "{"+k+"}", v)
		}
		out[i] = a
	}
	return out
}
