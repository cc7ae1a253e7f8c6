package reporter

import "github.com/programme-lv/proctor/api"

// Reporter receives the proctoring event stream of one session. Every
// implementation must be safe to call from multiple goroutines and must not
// block the caller on slow transports.
type Reporter interface {
	SessionStart(exerciseID string)
	Agreement(accepted bool)
	ControlAcquired(control string)
	Violation(kind string, detail string, count int)

	RunStart(language string)
	RunFinish(res *api.ExecRes)
	InputWait(waiting bool)

	ChunkFlush(seq int, bytes int)

	Terminated(reason string)
	Completed(reason string)
}

// Multi fans events out to several reporters in order.
type Multi []Reporter

func (m Multi) SessionStart(exerciseID string) {
	for _, r := range m {
		r.SessionStart(exerciseID)
	}
}

func (m Multi) Agreement(accepted bool) {
	for _, r := range m {
		r.Agreement(accepted)
	}
}

func (m Multi) ControlAcquired(control string) {
	for _, r := range m {
		r.ControlAcquired(control)
	}
}

func (m Multi) Violation(kind string, detail string, count int) {
	for _, r := range m {
		r.Violation(kind, detail, count)
	}
}

func (m Multi) RunStart(language string) {
	for _, r := range m {
		r.RunStart(language)
	}
}

func (m Multi) RunFinish(res *api.ExecRes) {
	for _, r := range m {
		r.RunFinish(res)
	}
}

func (m Multi) InputWait(waiting bool) {
	for _, r := range m {
		r.InputWait(waiting)
	}
}

func (m Multi) ChunkFlush(seq int, bytes int) {
	for _, r := range m {
		r.ChunkFlush(seq, bytes)
	}
}

func (m Multi) Terminated(reason string) {
	for _, r := range m {
		r.Terminated(reason)
	}
}

func (m Multi) Completed(reason string) {
	for _, r := range m {
		r.Completed(reason)
	}
}

// Discard ignores every event. Useful as a default.
type Discard struct{}

func (Discard) SessionStart(string)           {}
func (Discard) Agreement(bool)                {}
func (Discard) ControlAcquired(string)        {}
func (Discard) Violation(string, string, int) {}
func (Discard) RunStart(string)               {}
func (Discard) RunFinish(*api.ExecRes)        {}
func (Discard) InputWait(bool)                {}
func (Discard) ChunkFlush(int, int)           {}
func (Discard) Terminated(string)             {}
func (Discard) Completed(string)              {}
