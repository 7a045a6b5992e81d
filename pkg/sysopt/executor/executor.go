// Package executor runs external OS commands for the tuning categories.
//
// Commands are argument vectors, never shell strings. Configuration values
// are passed as separate arguments or on stdin so they cannot change the
// command being executed.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds a single command when the caller's context has no deadline.
const DefaultTimeout = 2 * time.Minute

// Command is one external program invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin string
}

// New builds a Command.
func New(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// WithStdin returns a copy of c that feeds s to the program's stdin.
func (c Command) WithStdin(s string) Command {
	c.Stdin = s
	return c
}

// String renders the command for logs. Stdin is shown as a pipe prefix so
// `echo deadline | tee ...` reads the way an operator would type it.
func (c Command) String() string {
	var b strings.Builder
	if c.Stdin != "" {
		b.WriteString("echo ")
		b.WriteString(quote(strings.TrimRight(c.Stdin, "\n")))
		b.WriteString(" | ")
	}
	b.WriteString(c.Name)
	for _, a := range c.Args {
		b.WriteByte(' ')
		b.WriteString(quote(a))
	}
	return b.String()
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n'\"|&;$") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}

// Result is the outcome of one command. Err is nil on a zero exit status.
type Result struct {
	Output string
	Err    error
}

// Succeeded reports whether the command exited cleanly.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Executor runs commands. Implementations never panic and never return
// failures other than through Result.Err.
type Executor interface {
	Run(ctx context.Context, cmd Command) Result
}

// ErrNotFound is wrapped when the program is not installed.
var ErrNotFound = errors.New("command not found")

// OS runs commands on the host with exec.CommandContext.
type OS struct {
	// Timeout applies when ctx has no deadline. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// Run executes cmd and captures combined stdout and stderr.
func (o OS) Run(ctx context.Context, cmd Command) Result {
	if _, ok := ctx.Deadline(); !ok {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	path, err := exec.LookPath(cmd.Name)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %s", ErrNotFound, cmd.Name)}
	}

	c := exec.CommandContext(ctx, path, cmd.Args...)
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}
	out, err := c.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if output != "" {
			return Result{Output: output, Err: fmt.Errorf("%w: %s", err, firstLine(output))}
		}
		return Result{Output: output, Err: err}
	}
	return Result{Output: output}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Recorder is an Executor that records commands instead of running them.
// It backs --dry-run and the tests.
type Recorder struct {
	mu      sync.Mutex
	calls   []Command
	outputs map[string]string
	errors  map[string]error
}

// NewRecorder returns a Recorder where every command succeeds with no output.
func NewRecorder() *Recorder {
	return &Recorder{
		outputs: make(map[string]string),
		errors:  make(map[string]error),
	}
}

// Run records cmd and returns the configured result for it.
func (r *Recorder) Run(_ context.Context, cmd Command) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, cmd)
	key := cmd.String()
	if err, ok := r.errors[key]; ok {
		return Result{Output: r.outputs[key], Err: err}
	}
	return Result{Output: r.outputs[key]}
}

// Fail makes the command rendered as key fail with err.
func (r *Recorder) Fail(key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[key] = err
}

// Respond sets the output returned for the command rendered as key.
func (r *Recorder) Respond(key, output string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[key] = output
}

// Calls returns the recorded commands in order.
func (r *Recorder) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.calls...)
}

// Lines returns the recorded commands rendered with String.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lines []string
	for _, c := range r.calls {
		lines = append(lines, c.String())
	}
	return lines
}

// Reset forgets recorded calls but keeps configured responses.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
