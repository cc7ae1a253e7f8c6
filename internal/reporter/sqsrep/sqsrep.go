// Package sqsrep writes a durable audit trail of proctoring events to an
// SQS queue. The trail is consumed by the review backend; losing a single
// message degrades the audit record but never the session itself.
package sqsrep

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/reporter"
)

type sqsAuditReporter struct {
	sqsClient   *sqs.Client
	queueUrl    string
	sessionUuid string
}

// New creates an SQS audit reporter for one session.
func New(ctx context.Context, region string, sessionUuid string, queueUrl string) (reporter.Reporter, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &sqsAuditReporter{
		sqsClient:   sqs.NewFromConfig(cfg),
		queueUrl:    queueUrl,
		sessionUuid: sessionUuid,
	}, nil
}

func (s *sqsAuditReporter) send(msg interface{}) {
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("failed to marshal audit message", "error", err)
		return
	}
	_, err = s.sqsClient.SendMessage(context.Background(), &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueUrl),
		MessageBody: aws.String(string(b)),
	})
	if err != nil {
		slog.Warn("failed to send audit message", "error", err)
	}
}

func (s *sqsAuditReporter) SessionStart(exerciseID string) {
	s.send(api.NewSessionStart(s.sessionUuid, exerciseID))
}

func (s *sqsAuditReporter) Agreement(accepted bool) {
	s.send(api.NewAgreement(s.sessionUuid, accepted))
}

func (s *sqsAuditReporter) ControlAcquired(control string) {
	s.send(api.NewControlAcquired(s.sessionUuid, control))
}

func (s *sqsAuditReporter) Violation(kind string, detail string, count int) {
	s.send(api.NewViolation(s.sessionUuid, kind, detail, count))
}

func (s *sqsAuditReporter) RunStart(language string) {
	s.send(api.NewRunStart(s.sessionUuid, language))
}

func (s *sqsAuditReporter) RunFinish(res *api.ExecRes) {
	s.send(api.NewRunFinish(s.sessionUuid, reporter.TrimExecRes(res)))
}

func (s *sqsAuditReporter) InputWait(waiting bool) {
	s.send(api.NewInputWait(s.sessionUuid, waiting))
}

func (s *sqsAuditReporter) ChunkFlush(seq int, bytes int) {
	// Chunk flushes happen every second; they are deliberately not written
	// to the durable trail.
}

func (s *sqsAuditReporter) Terminated(reason string) {
	s.send(api.NewTerminated(s.sessionUuid, reason))
}

func (s *sqsAuditReporter) Completed(reason string) {
	s.send(api.NewCompleted(s.sessionUuid, reason))
}
