package proctor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/reporter"
)

// State of the assessment lifecycle.
type State int

const (
	NotStarted State = iota
	AwaitingAgreement
	Running
	Terminated
	Completed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case AwaitingAgreement:
		return "awaiting-agreement"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Control names a proctoring control that must be acquired before the
// running state is entered.
type Control string

const (
	ControlFullscreen Control = "fullscreen"
	ControlScreen     Control = "screen-recording"
	ControlCameraMic  Control = "camera-mic"
	ControlTimer      Control = "timer"
)

// Termination reasons for the built-in policies.
const (
	ReasonTabSwitches = "Maximum tab switches exceeded"
	ReasonTimeLimit   = "Time limit exceeded"
	ReasonUserExit    = "user-initiated exit"
)

// Platform is the inbound/outbound boundary to the learner's browser.
// Requesting fullscreen may suspend on a user permission prompt.
type Platform interface {
	RequestFullscreen(ctx context.Context) error
	ExitFullscreen()

	// PromptExitConfirmation asks the client to show the blocking
	// resume-or-exit dialog. The answer arrives via ResolveExitPrompt.
	PromptExitConfirmation()
}

// Recorder is the slice of the recording pipeline the state machine drives.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() ([]byte, int, error)
	Active() bool
}

// Outcome is the terminal result of a session handed to the outcome sink.
type Outcome struct {
	Status      api.Status
	Reason      string
	Artifact    []byte
	ChunkCount  int
	TabSwitches int
	Violations  []string
	Elapsed     time.Duration
}

// OutcomeSink receives exactly one outcome per session. The lock report to
// the backend happens behind this interface; a failure there never prevents
// the local terminal state from taking effect.
type OutcomeSink interface {
	ReportOutcome(ctx context.Context, o Outcome) error
}

// Machine enforces the proctoring policy of one assessment session:
// agreement gating, fullscreen, tab-switch counting, the countdown timer and
// clipboard policy. It is the only writer of the session lifecycle state.
type Machine struct {
	mu sync.Mutex

	sessionUuid string
	exerciseID  string
	cfg         api.SecurityConfig

	state  State
	agreed bool

	tabSwitches     int
	clipboardEvents int
	violationKinds  mapset.Set[string]
	controls        mapset.Set[Control]

	awaitingExitDecision bool

	startedAt time.Time
	deadline  time.Time
	timer     *time.Timer

	platform Platform
	rec      Recorder
	sink     OutcomeSink
	rep      reporter.Reporter
	logger   *slog.Logger
}

// New creates a machine in the NotStarted state.
func New(sessionUuid, exerciseID string, cfg api.SecurityConfig,
	platform Platform, rec Recorder, sink OutcomeSink,
	rep reporter.Reporter, logger *slog.Logger) *Machine {
	if rep == nil {
		rep = reporter.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		sessionUuid:    sessionUuid,
		exerciseID:     exerciseID,
		cfg:            cfg,
		violationKinds: mapset.NewSet[string](),
		controls:       mapset.NewSet[Control](),
		platform:       platform,
		rec:            rec,
		sink:           sink,
		rep:            rep,
		logger:         logger.With("session", sessionUuid),
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TabSwitches returns the hide-event count so far.
func (m *Machine) TabSwitches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tabSwitches
}

// Remaining returns the time left on the countdown, or zero when no timer
// is configured.
func (m *Machine) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cfg.TimerEnabled || m.deadline.IsZero() {
		return 0
	}
	rem := time.Until(m.deadline)
	if rem < 0 {
		return 0
	}
	return rem
}

// OpenAgreement moves a fresh session to the consent step when the security
// configuration requires one. Without any active control the session stays
// in NotStarted and may start directly.
func (m *Machine) OpenAgreement() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != NotStarted || !m.cfg.RequiresAgreement() {
		return
	}
	m.state = AwaitingAgreement
}

// Agree records explicit consent to the configured controls.
func (m *Machine) Agree() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != AwaitingAgreement {
		return
	}
	m.agreed = true
	m.rep.Agreement(true)
}

// Decline returns control to the caller without creating a running session.
func (m *Machine) Decline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != AwaitingAgreement {
		return
	}
	m.agreed = false
	m.state = NotStarted
	m.rep.Agreement(false)
}

// StartAssessment acquires every required control and transitions to
// Running. On any acquisition failure the session remains in its pre-running
// state and the error is surfaced to the caller; fullscreen denial is
// retriable by calling StartAssessment again.
func (m *Machine) StartAssessment(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case NotStarted:
		if m.cfg.RequiresAgreement() {
			m.mu.Unlock()
			return fmt.Errorf("agreement step has not been opened")
		}
	case AwaitingAgreement:
		if !m.agreed {
			m.mu.Unlock()
			return fmt.Errorf("learner has not agreed to the assessment terms")
		}
	default:
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("cannot start assessment from state %s", state)
	}
	m.mu.Unlock()

	// Fullscreen first: the assessment must not silently run windowed when
	// fullscreen is required.
	if m.cfg.FullScreenMode {
		if err := m.platform.RequestFullscreen(ctx); err != nil {
			return fmt.Errorf("failed to enter fullscreen: %w", err)
		}
		m.controls.Add(ControlFullscreen)
		m.rep.ControlAcquired(string(ControlFullscreen))
	}

	if m.cfg.ScreenRecordingEnabled {
		if err := m.rec.Start(ctx); err != nil {
			if m.cfg.FullScreenMode {
				m.platform.ExitFullscreen()
				m.controls.Remove(ControlFullscreen)
			}
			return fmt.Errorf("failed to start recording: %w", err)
		}
		m.controls.Add(ControlScreen)
		m.rep.ControlAcquired(string(ControlScreen))
		if m.cfg.CameraMicEnabled {
			m.controls.Add(ControlCameraMic)
			m.rep.ControlAcquired(string(ControlCameraMic))
		}
	}

	m.mu.Lock()
	// The session may have gone terminal while acquisition ran unlocked
	// (e.g. the connection dropped). A terminal state is never resurrected:
	// release what was acquired and refuse.
	if m.state == Terminated || m.state == Completed {
		state := m.state
		m.mu.Unlock()
		if m.controls.Contains(ControlFullscreen) {
			m.platform.ExitFullscreen()
			m.controls.Remove(ControlFullscreen)
		}
		if m.rec != nil && m.rec.Active() {
			if _, _, err := m.rec.Stop(); err != nil {
				m.logger.Warn("failed to release recorder after late start", "error", err)
			}
		}
		return fmt.Errorf("cannot start assessment from state %s", state)
	}
	m.startedAt = time.Now()
	if m.cfg.TimerEnabled && m.cfg.DurationMinutes > 0 {
		dur := time.Duration(m.cfg.DurationMinutes) * time.Minute
		m.deadline = m.startedAt.Add(dur)
		m.timer = time.AfterFunc(dur, m.onTimerExpiry)
		m.controls.Add(ControlTimer)
	}
	m.state = Running
	m.mu.Unlock()

	m.rep.SessionStart(m.exerciseID)
	m.logger.Info("assessment running", "exercise", m.exerciseID)
	return nil
}

func (m *Machine) onTimerExpiry() {
	m.Terminate(ReasonTimeLimit)
}

// Terminate closes the session with status terminated. It is idempotent: a
// second call while already terminal is a no-op, and exactly one outcome
// report is issued.
func (m *Machine) Terminate(reason string) {
	m.finish(api.StatusTerminated, reason)
}

// Complete closes the session with status completed; same side effects as
// Terminate, used when the learner finishes the exercise normally.
func (m *Machine) Complete(reason string) {
	m.finish(api.StatusCompleted, reason)
}

func (m *Machine) finish(status api.Status, reason string) {
	m.mu.Lock()
	if m.state == Terminated || m.state == Completed {
		m.mu.Unlock()
		return
	}
	if status == api.StatusTerminated {
		m.state = Terminated
	} else {
		m.state = Completed
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	tabSwitches := m.tabSwitches
	violations := m.violationKinds.ToSlice()
	var elapsed time.Duration
	if !m.startedAt.IsZero() {
		elapsed = time.Since(m.startedAt)
	}
	m.mu.Unlock()

	if m.controls.Contains(ControlFullscreen) {
		m.platform.ExitFullscreen()
	}

	// Whatever was recorded so far is kept; partial recordings are valid
	// evidence for violation cases.
	var artifact []byte
	var chunks int
	if m.rec != nil && m.rec.Active() {
		var err error
		artifact, chunks, err = m.rec.Stop()
		if err != nil {
			m.logger.Error("failed to finalize recording", "error", err)
		}
	}

	outcome := Outcome{
		Status:      status,
		Reason:      reason,
		Artifact:    artifact,
		ChunkCount:  chunks,
		TabSwitches: tabSwitches,
		Violations:  violations,
		Elapsed:     elapsed,
	}
	if err := m.sink.ReportOutcome(context.Background(), outcome); err != nil {
		// The local terminal state stands regardless of network outcome.
		m.logger.Error("failed to report session outcome", "error", err)
	}

	if status == api.StatusTerminated {
		m.rep.Terminated(reason)
		m.logger.Warn("assessment terminated", "reason", reason)
	} else {
		m.rep.Completed(reason)
		m.logger.Info("assessment completed", "reason", reason)
	}
}
