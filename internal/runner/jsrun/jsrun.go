// Package jsrun is the local in-process JavaScript backend. Unlike the
// remote sandbox it supports interactive input: the input() builtin
// suspends the running program on an injected prompt function until the
// terminal channel resolves it.
package jsrun

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/programme-lv/proctor/api"
)

// PromptFunc asynchronously obtains one line of user input. It blocks the
// interpreter goroutine, never the host.
type PromptFunc func(ctx context.Context) (string, error)

// Hooks carries the per-run streaming callbacks. Stdout and stderr are
// delivered as they are produced, not buffered to the end of the run.
type Hooks struct {
	Stdout func(text string)
	Stderr func(text string)
	Prompt PromptFunc
}

// Interp owns a single goja runtime. Executions are serialized; callers
// racing for the first run share one lazy initialization (see runner).
type Interp struct {
	mu sync.Mutex
	vm *goja.Runtime

	// per-run state, guarded by mu for the duration of Run
	hooks  Hooks
	ctx    context.Context
	stdin  *bufio.Scanner
	outBuf strings.Builder
	errBuf strings.Builder
}

// New constructs the runtime and installs the console and input builtins.
func New() (*Interp, error) {
	i := &Interp{vm: goja.New()}

	console := i.vm.NewObject()
	if err := console.Set("log", i.jsConsoleLog); err != nil {
		return nil, fmt.Errorf("failed to install console.log: %w", err)
	}
	if err := console.Set("error", i.jsConsoleError); err != nil {
		return nil, fmt.Errorf("failed to install console.error: %w", err)
	}
	if err := i.vm.Set("console", console); err != nil {
		return nil, fmt.Errorf("failed to install console: %w", err)
	}
	if err := i.vm.Set("print", i.jsConsoleLog); err != nil {
		return nil, fmt.Errorf("failed to install print: %w", err)
	}
	if err := i.vm.Set("input", i.jsInput); err != nil {
		return nil, fmt.Errorf("failed to install input: %w", err)
	}
	return i, nil
}

// Run executes code to completion. Failures of any kind are captured in the
// result, never raised: the adapter contract is "always returns a result".
func (i *Interp) Run(ctx context.Context, code string, stdin string, hooks Hooks) (res api.ExecRes) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.hooks = hooks
	i.ctx = ctx
	i.stdin = bufio.NewScanner(strings.NewReader(stdin))
	i.outBuf.Reset()
	i.errBuf.Reset()
	defer func() {
		i.hooks = Hooks{}
		i.ctx = nil
		i.stdin = nil
	}()

	// Interrupt the VM when the context is cancelled; safe from another
	// goroutine. The watcher must be fully quiesced before ClearInterrupt,
	// or a late Interrupt would poison the next run of the shared runtime.
	stopWatcher := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			i.vm.Interrupt(ctx.Err())
		case <-stopWatcher:
		}
	}()
	defer func() {
		close(stopWatcher)
		<-watcherDone
		i.vm.ClearInterrupt()
	}()

	defer func() {
		// Programs must not crash the host; panics out of goja (including
		// thrown Go errors from builtins) become diagnostic results.
		if r := recover(); r != nil {
			msg := fmt.Sprintf("runtime panic: %v", r)
			res = i.result(&msg, nil)
		}
	}()

	started := time.Now()
	_, err := i.vm.RunString(code)
	wall := time.Since(started).Milliseconds()

	if err != nil {
		msg := diagnosticFromError(err)
		return i.result(&msg, &wall)
	}
	return i.result(nil, &wall)
}

func (i *Interp) result(errMsg *string, wall *int64) api.ExecRes {
	return api.ExecRes{
		Stdout:       i.outBuf.String(),
		Stderr:       i.errBuf.String(),
		ErrorMessage: errMsg,
		WallMillis:   wall,
	}
}

func diagnosticFromError(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return "execution interrupted"
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return exception.String()
	}
	return err.Error()
}

func (i *Interp) jsConsoleLog(call goja.FunctionCall) goja.Value {
	line := formatArgs(call.Arguments)
	i.outBuf.WriteString(line)
	i.outBuf.WriteByte('\n')
	if i.hooks.Stdout != nil {
		i.hooks.Stdout(line)
	}
	return goja.Undefined()
}

func (i *Interp) jsConsoleError(call goja.FunctionCall) goja.Value {
	line := formatArgs(call.Arguments)
	i.errBuf.WriteString(line)
	i.errBuf.WriteByte('\n')
	if i.hooks.Stderr != nil {
		i.hooks.Stderr(line)
	}
	return goja.Undefined()
}

// jsInput is the interactive input primitive. Pre-supplied stdin lines are
// consumed first; after that each call suspends on the prompt function
// until the terminal channel resolves it.
func (i *Interp) jsInput(call goja.FunctionCall) goja.Value {
	if i.stdin != nil && i.stdin.Scan() {
		return i.vm.ToValue(i.stdin.Text())
	}
	if i.hooks.Prompt == nil {
		panic(i.vm.NewGoError(errors.New("input() is not available in this run")))
	}
	line, err := i.hooks.Prompt(i.ctx)
	if err != nil {
		panic(i.vm.NewGoError(fmt.Errorf("input unavailable: %w", err)))
	}
	return i.vm.ToValue(line)
}

func formatArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}
