// Package runner normalizes the two code-execution providers behind one
// request/response contract: the stateless remote sandbox for most
// languages, and the local in-process JavaScript interpreter when
// interactive input is required.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/runner/jsrun"
	"github.com/programme-lv/proctor/internal/runner/sandbox"
	"github.com/programme-lv/proctor/internal/termio"
)

// LocalLanguage is the single language served by the in-process backend.
const LocalLanguage = "javascript"

// Runner dispatches execution requests by language. Its contract is
// "always returns a result, never raises": every failure mode is captured
// as diagnostic text in the result.
type Runner struct {
	sandbox *sandbox.Client
	logger  *slog.Logger

	// The interpreter is a lazily-initialized singleton. sync.Once makes
	// concurrent first users wait on the same in-flight initialization
	// instead of racing.
	localOnce sync.Once
	local     *jsrun.Interp
	localErr  error
}

// New creates a runner backed by the given sandbox client.
func New(sb *sandbox.Client, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{sandbox: sb, logger: logger}
}

// IsLocal reports whether language runs on the in-process backend.
func IsLocal(language string) bool {
	switch strings.ToLower(language) {
	case LocalLanguage, "js":
		return true
	}
	return false
}

// Run executes the request on the backend chosen by language, streaming
// output and input requests through the terminal channel.
func (r *Runner) Run(ctx context.Context, req api.ExecReq, ch *termio.Channel) api.ExecRes {
	if IsLocal(req.Language) {
		return r.runLocal(ctx, req, ch)
	}
	return r.runRemote(ctx, req, ch)
}

func (r *Runner) runRemote(ctx context.Context, req api.ExecReq, ch *termio.Channel) api.ExecRes {
	res, err := r.sandbox.Exec(ctx, req)
	if err != nil {
		r.logger.Warn("sandbox execution failed", "language", req.Language, "error", err)
		msg := err.Error()
		return api.ExecRes{ErrorMessage: &msg}
	}
	if ch != nil {
		if res.Stdout != "" {
			ch.Append(api.LogOutput, strings.TrimRight(res.Stdout, "\n"))
		}
		if res.Stderr != "" {
			ch.Append(api.LogErrOutput, strings.TrimRight(res.Stderr, "\n"))
		}
	}
	return res
}

func (r *Runner) runLocal(ctx context.Context, req api.ExecReq, ch *termio.Channel) api.ExecRes {
	r.localOnce.Do(func() {
		r.local, r.localErr = jsrun.New()
	})
	if r.localErr != nil {
		msg := fmt.Sprintf("failed to initialize local interpreter: %v", r.localErr)
		return api.ExecRes{ErrorMessage: &msg}
	}

	hooks := jsrun.Hooks{}
	if ch != nil {
		hooks.Stdout = func(text string) { ch.Append(api.LogOutput, text) }
		hooks.Stderr = func(text string) { ch.Append(api.LogErrOutput, text) }
		hooks.Prompt = ch.RequestInput
	}
	return r.local.Run(ctx, req.Code, req.Stdin, hooks)
}
