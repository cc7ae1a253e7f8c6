// Package natsrep streams proctoring events over NATS for the live
// invigilator view.
package natsrep

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/reporter"
)

type natsReporter struct {
	nc          *nats.Conn
	subject     string
	sessionUuid string
}

// New creates a NATS reporter that publishes events to the given subject.
func New(nc *nats.Conn, sessionUuid string, subject string) reporter.Reporter {
	return &natsReporter{
		nc:          nc,
		subject:     subject,
		sessionUuid: sessionUuid,
	}
}

func (n *natsReporter) send(msg interface{}) {
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("failed to marshal proctor event", "error", err)
		return
	}
	if err := n.nc.Publish(n.subject, b); err != nil {
		slog.Warn("failed to publish proctor event to NATS", "error", err)
	}
}

func (n *natsReporter) SessionStart(exerciseID string) {
	n.send(api.NewSessionStart(n.sessionUuid, exerciseID))
}

func (n *natsReporter) Agreement(accepted bool) {
	n.send(api.NewAgreement(n.sessionUuid, accepted))
}

func (n *natsReporter) ControlAcquired(control string) {
	n.send(api.NewControlAcquired(n.sessionUuid, control))
}

func (n *natsReporter) Violation(kind string, detail string, count int) {
	n.send(api.NewViolation(n.sessionUuid, kind, detail, count))
}

func (n *natsReporter) RunStart(language string) {
	n.send(api.NewRunStart(n.sessionUuid, language))
}

func (n *natsReporter) RunFinish(res *api.ExecRes) {
	n.send(api.NewRunFinish(n.sessionUuid, reporter.TrimExecRes(res)))
}

func (n *natsReporter) InputWait(waiting bool) {
	n.send(api.NewInputWait(n.sessionUuid, waiting))
}

func (n *natsReporter) ChunkFlush(seq int, bytes int) {
	n.send(api.NewChunkFlush(n.sessionUuid, seq, bytes))
}

func (n *natsReporter) Terminated(reason string) {
	n.send(api.NewTerminated(n.sessionUuid, reason))
}

func (n *natsReporter) Completed(reason string) {
	n.send(api.NewCompleted(n.sessionUuid, reason))
}
