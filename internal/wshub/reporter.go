package wshub

import (
	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/reporter"
)

// hubReporter publishes the proctor event stream of one session to every
// observer connected to the hub.
type hubReporter struct {
	hub         *Hub
	sessionUuid string
}

// Reporter returns a reporter that broadcasts this session's events.
func (h *Hub) Reporter(sessionUuid string) reporter.Reporter {
	return &hubReporter{hub: h, sessionUuid: sessionUuid}
}

func (r *hubReporter) SessionStart(exerciseID string) {
	r.hub.Broadcast(api.NewSessionStart(r.sessionUuid, exerciseID))
}

func (r *hubReporter) Agreement(accepted bool) {
	r.hub.Broadcast(api.NewAgreement(r.sessionUuid, accepted))
}

func (r *hubReporter) ControlAcquired(control string) {
	r.hub.Broadcast(api.NewControlAcquired(r.sessionUuid, control))
}

func (r *hubReporter) Violation(kind string, detail string, count int) {
	r.hub.Broadcast(api.NewViolation(r.sessionUuid, kind, detail, count))
}

func (r *hubReporter) RunStart(language string) {
	r.hub.Broadcast(api.NewRunStart(r.sessionUuid, language))
}

func (r *hubReporter) RunFinish(res *api.ExecRes) {
	r.hub.Broadcast(api.NewRunFinish(r.sessionUuid, reporter.TrimExecRes(res)))
}

func (r *hubReporter) InputWait(waiting bool) {
	r.hub.Broadcast(api.NewInputWait(r.sessionUuid, waiting))
}

func (r *hubReporter) ChunkFlush(seq int, bytes int) {
	r.hub.Broadcast(api.NewChunkFlush(r.sessionUuid, seq, bytes))
}

func (r *hubReporter) Terminated(reason string) {
	r.hub.Broadcast(api.NewTerminated(r.sessionUuid, reason))
}

func (r *hubReporter) Completed(reason string) {
	r.hub.Broadcast(api.NewCompleted(r.sessionUuid, reason))
}
