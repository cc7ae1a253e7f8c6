// Package termrep prints the proctoring event stream to the terminal.
// Used for local scenario drives and debugging.
package termrep

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/reporter"
)

type TerminalReporter struct {
	SessionUuid string
	StartedAt   time.Time
}

func New(sessionUuid string) *TerminalReporter {
	return &TerminalReporter{SessionUuid: sessionUuid, StartedAt: time.Now()}
}

func (t *TerminalReporter) SessionStart(exerciseID string) {
	fmt.Printf("== Assessment %s started (exercise %s) ==\n", t.SessionUuid, exerciseID)
}

func (t *TerminalReporter) Agreement(accepted bool) {
	if accepted {
		color.Green("-- Terms accepted --")
	} else {
		color.Yellow("-- Terms declined --")
	}
}

func (t *TerminalReporter) ControlAcquired(control string) {
	fmt.Printf("-> Control acquired: %s\n", control)
}

func (t *TerminalReporter) Violation(kind string, detail string, count int) {
	color.Yellow("!! Violation: %s (%s), count=%d", kind, detail, count)
}

func (t *TerminalReporter) RunStart(language string) {
	fmt.Printf("-- Run started (%s) --\n", language)
}

func (t *TerminalReporter) RunFinish(res *api.ExecRes) {
	fmt.Println("-- Run finished --")
	if res == nil {
		return
	}
	trimmed := reporter.TrimExecRes(res)
	if trimmed.Stdout != "" {
		fmt.Printf("stdout:\n%s\n", trimmed.Stdout)
	}
	if trimmed.Stderr != "" {
		fmt.Printf("stderr:\n%s\n", trimmed.Stderr)
	}
	if trimmed.ErrorMessage != nil {
		color.Red("error: %s", *trimmed.ErrorMessage)
	}
}

func (t *TerminalReporter) InputWait(waiting bool) {
	if waiting {
		fmt.Println("?? Waiting for input")
	}
}

func (t *TerminalReporter) ChunkFlush(seq int, bytes int) {
	fmt.Printf(".. chunk %d flushed (%d bytes)\n", seq, bytes)
}

func (t *TerminalReporter) Terminated(reason string) {
	dur := time.Since(t.StartedAt).Round(time.Millisecond)
	color.Red("== Assessment terminated after %s: %s ==", dur, reason)
}

func (t *TerminalReporter) Completed(reason string) {
	dur := time.Since(t.StartedAt).Round(time.Millisecond)
	color.Green("== Assessment completed after %s: %s ==", dur, reason)
}
