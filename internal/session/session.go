// Package session owns the assessment session: it wires the proctoring
// state machine, the recording pipeline, the execution backends and the
// terminal channel together and reports outcomes to the course backend.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/proctor"
	"github.com/programme-lv/proctor/internal/recorder"
	"github.com/programme-lv/proctor/internal/reporter"
	"github.com/programme-lv/proctor/internal/runner"
	"github.com/programme-lv/proctor/internal/s3upl"
	"github.com/programme-lv/proctor/internal/termio"
)

// ArtifactStore uploads finalized recordings and returns durable URLs.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, artifact []byte, tags s3upl.Tags) (string, error)
}

// ProgressSink delivers progress and lock reports to the course backend.
type ProgressSink interface {
	Progress(ctx context.Context, report api.ProgressReport) error
	Lock(ctx context.Context, report api.ProgressReport, artifact []byte) error
}

// Params carries everything a session needs from the outside world.
type Params struct {
	// ID is the session uuid; generated when empty. Callers that must know
	// the id before construction (e.g. to build per-session reporters)
	// generate it themselves.
	ID        string
	StudentID string
	Exercise  api.Exercise

	Platform      proctor.Platform
	AcquireScreen recorder.AcquireFunc
	AcquireCamera recorder.AcquireFunc
	RecorderCfg   recorder.Config

	Runner  *runner.Runner
	Backend ProgressSink
	Store   ArtifactStore
	Rep     reporter.Reporter

	// OnLog observes every terminal log entry, e.g. to forward it over the
	// learner's websocket.
	OnLog func(api.LogEntry)

	Logger *slog.Logger
}

// Session is one attempt at one exercise by one learner. It is the single
// source of truth for lifecycle state; other components receive read access
// and narrow mutation callbacks only.
type Session struct {
	ID        string
	StudentID string
	Exercise  api.Exercise

	Machine *proctor.Machine
	Channel *termio.Channel

	mu          sync.Mutex
	questionIdx int
	attempts    map[int]int
	runActive   bool

	runner  *runner.Runner
	rec     *recorder.Recorder
	backend ProgressSink
	store   ArtifactStore
	rep     reporter.Reporter
	logger  *slog.Logger
}

// New assembles a session in the NotStarted state.
func New(p Params) *Session {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", id)
	rep := p.Rep
	if rep == nil {
		rep = reporter.Discard{}
	}

	s := &Session{
		ID:        id,
		StudentID: p.StudentID,
		Exercise:  p.Exercise,
		attempts:  make(map[int]int),
		runner:    p.Runner,
		backend:   p.Backend,
		store:     p.Store,
		rep:       rep,
		logger:    logger,
	}

	s.Channel = termio.New(p.OnLog, rep.InputWait)

	var acquireCamera recorder.AcquireFunc
	if p.Exercise.Security.CameraMicEnabled {
		acquireCamera = p.AcquireCamera
	}
	cfg := p.RecorderCfg
	if cfg.FrameRate == 0 {
		cfg = recorder.DefaultConfig()
	}
	s.rec = recorder.New(cfg, p.AcquireScreen, acquireCamera,
		s.overlay, rep.ChunkFlush, logger)

	s.Machine = proctor.New(id, p.Exercise.ID, p.Exercise.Security,
		p.Platform, s.rec, s, rep, logger)
	s.Machine.OpenAgreement()
	return s
}

// overlay supplies the status caption drawn on every composited frame.
func (s *Session) overlay() recorder.Overlay {
	now := time.Now()
	caption := s.Exercise.ID
	if rem := s.Machine.Remaining(); rem > 0 {
		caption = fmt.Sprintf("%s | %s remaining", s.Exercise.ID, rem.Round(time.Second))
	}
	return recorder.Overlay{
		Caption:   caption,
		Timestamp: now.Format("15:04:05"),
		Indicator: now.Second()%2 == 0,
	}
}

// Question returns the current question.
func (s *Session) Question() api.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Exercise.Questions[s.questionIdx]
}

// QuestionIndex returns the zero-based index of the current question.
func (s *Session) QuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionIdx
}

// Start drives the machine into the running state; see
// proctor.Machine.StartAssessment for the acquisition semantics.
func (s *Session) Start(ctx context.Context) error {
	return s.Machine.StartAssessment(ctx)
}

// RunCode executes learner code against the backend chosen by language.
// Gating failures (session not running, disallowed language, attempt limit)
// are returned as errors; execution failures are diagnostic text inside the
// result per the adapter contract.
func (s *Session) RunCode(ctx context.Context, language, code, stdin string) (api.ExecRes, error) {
	if s.Machine.State() != proctor.Running {
		return api.ExecRes{}, fmt.Errorf("assessment is not running")
	}

	s.mu.Lock()
	q := s.Exercise.Questions[s.questionIdx]
	allowed := mapset.NewSet(q.AllowedLanguages...)
	if allowed.Cardinality() > 0 && !allowed.Contains(language) {
		s.mu.Unlock()
		return api.ExecRes{}, fmt.Errorf("language %s is not allowed for this question", language)
	}
	if q.AttemptLimit > 0 && s.attempts[s.questionIdx] >= q.AttemptLimit {
		s.mu.Unlock()
		return api.ExecRes{}, fmt.Errorf("attempt limit reached for this question")
	}
	if s.runActive {
		s.mu.Unlock()
		return api.ExecRes{}, fmt.Errorf("a run is already in progress")
	}
	s.attempts[s.questionIdx]++
	s.runActive = true
	questionID := q.ID
	version := q.LanguageVersions[language]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.runActive = false
		s.mu.Unlock()
	}()

	s.Channel.BeginRun()
	defer s.Channel.EndRun()

	s.rep.RunStart(language)
	res := s.runner.Run(ctx, api.ExecReq{
		SessionUuid: s.ID,
		Language:    language,
		Version:     version,
		Code:        code,
		Stdin:       stdin,
	}, s.Channel)
	s.rep.RunFinish(&res)

	s.reportProgress(ctx, questionID, language, code, api.StatusAttempted, "")
	return res, nil
}

// SubmitInput resolves the pending interactive input request, if any.
func (s *Session) SubmitInput(text string) bool {
	return s.Channel.SubmitInput(text)
}

// Submit records the learner's final answer for the current question and
// advances; submitting the last question completes the whole assessment.
func (s *Session) Submit(ctx context.Context, language, code string) error {
	if s.Machine.State() != proctor.Running {
		return fmt.Errorf("assessment is not running")
	}

	s.mu.Lock()
	q := s.Exercise.Questions[s.questionIdx]
	last := s.questionIdx == len(s.Exercise.Questions)-1
	if !last {
		s.questionIdx++
	}
	s.mu.Unlock()

	s.reportProgress(ctx, q.ID, language, code, api.StatusSubmitted, "")

	if last {
		s.Machine.Complete("submitted")
	}
	return nil
}

// Skip moves past the current question when the exercise allows it.
func (s *Session) Skip(ctx context.Context) error {
	if s.Machine.State() != proctor.Running {
		return fmt.Errorf("assessment is not running")
	}

	s.mu.Lock()
	q := s.Exercise.Questions[s.questionIdx]
	if !q.AllowSkip {
		s.mu.Unlock()
		return fmt.Errorf("skipping is not allowed for this question")
	}
	last := s.questionIdx == len(s.Exercise.Questions)-1
	if !last {
		s.questionIdx++
	}
	s.mu.Unlock()

	s.reportProgress(ctx, q.ID, "", "", api.StatusSkipped, "")

	if last {
		s.Machine.Complete("skipped final question")
	}
	return nil
}

// NextQuestion advances without submitting, when allowed.
func (s *Session) NextQuestion() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.Exercise.Questions[s.questionIdx]
	if !q.AllowNext {
		return fmt.Errorf("advancing without submission is not allowed")
	}
	if s.questionIdx < len(s.Exercise.Questions)-1 {
		s.questionIdx++
	}
	return nil
}

func (s *Session) reportProgress(ctx context.Context, questionID, language, code string, status api.Status, reason string) {
	if s.backend == nil {
		return
	}
	report := api.ProgressReport{
		SessionUuid: s.ID,
		CourseID:    s.Exercise.CourseID,
		ExerciseID:  s.Exercise.ID,
		QuestionID:  questionID,
		Code:        code,
		Language:    language,
		Status:      status,
		Reason:      reason,
		TabSwitches: s.Machine.TabSwitches(),
	}
	if err := s.backend.Progress(ctx, report); err != nil {
		s.logger.Warn("failed to report progress", "status", status, "error", err)
	}
}

// ReportOutcome implements proctor.OutcomeSink: it uploads the recording
// artifact (when one exists) and posts the terminal lock report. Upload
// failure degrades to a report without a recording URL; the artifact bytes
// still travel with the multipart request.
func (s *Session) ReportOutcome(ctx context.Context, o proctor.Outcome) error {
	if s.backend == nil {
		return nil
	}

	var recordingURL *string
	if len(o.Artifact) > 0 && s.store != nil {
		url, err := s.store.Upload(ctx, s.ID+".prcv.zst", o.Artifact, s3upl.Tags{
			CourseID:   s.Exercise.CourseID,
			StudentID:  s.StudentID,
			ExerciseID: s.Exercise.ID,
			QuestionID: s.Question().ID,
			Category:   string(o.Status),
		})
		if err != nil {
			s.logger.Warn("failed to upload recording", "error", err)
		} else {
			recordingURL = &url
		}
	}

	report := api.ProgressReport{
		SessionUuid:  s.ID,
		CourseID:     s.Exercise.CourseID,
		ExerciseID:   s.Exercise.ID,
		QuestionID:   s.Question().ID,
		Status:       o.Status,
		Reason:       o.Reason,
		RecordingURL: recordingURL,
		Lock:         o.Status == api.StatusTerminated,
		TabSwitches:  o.TabSwitches,
		Violations:   o.Violations,
	}
	return s.backend.Lock(ctx, report, o.Artifact)
}
