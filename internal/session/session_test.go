package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/proctor"
	"github.com/programme-lv/proctor/internal/recorder"
	"github.com/programme-lv/proctor/internal/runner"
	"github.com/programme-lv/proctor/internal/runner/sandbox"
	"github.com/programme-lv/proctor/internal/s3upl"
	"github.com/programme-lv/proctor/internal/session"
	"github.com/stretchr/testify/require"
)

type grantAllPlatform struct{}

func (grantAllPlatform) RequestFullscreen(ctx context.Context) error { return nil }
func (grantAllPlatform) ExitFullscreen()                             {}
func (grantAllPlatform) PromptExitConfirmation()                     {}

type memBackend struct {
	mu       sync.Mutex
	progress []api.ProgressReport
	locks    []api.ProgressReport
	artifact []byte
}

func (b *memBackend) Progress(ctx context.Context, report api.ProgressReport) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress = append(b.progress, report)
	return nil
}

func (b *memBackend) Lock(ctx context.Context, report api.ProgressReport, artifact []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locks = append(b.locks, report)
	b.artifact = artifact
	return nil
}

func (b *memBackend) snapshot() (progress, locks []api.ProgressReport, artifact []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.ProgressReport{}, b.progress...),
		append([]api.ProgressReport{}, b.locks...),
		b.artifact
}

type memStore struct {
	mu   sync.Mutex
	keys []string
	tags []s3upl.Tags
}

func (s *memStore) Upload(ctx context.Context, key string, artifact []byte, tags s3upl.Tags) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	s.tags = append(s.tags, tags)
	return "https://recordings.example.com/" + key, nil
}

func stillScreen(ctx context.Context) (recorder.Source, error) {
	return recorder.NewColorSource(color.Black, 320, 180), nil
}

func failCamera(ctx context.Context) (recorder.Source, error) {
	return nil, fmt.Errorf("camera permission denied")
}

func exercise(security api.SecurityConfig, questions ...api.Question) api.Exercise {
	if len(questions) == 0 {
		questions = []api.Question{{ID: "q1", Text: "write a program"}}
	}
	return api.Exercise{
		ID:        "ex-1",
		CourseID:  "course-1",
		Title:     "Sample",
		Questions: questions,
		Security:  security,
	}
}

func newSession(t *testing.T, ex api.Exercise, backend *memBackend, store *memStore) *session.Session {
	t.Helper()
	params := session.Params{
		StudentID:     "student-1",
		Exercise:      ex,
		Platform:      grantAllPlatform{},
		AcquireScreen: stillScreen,
		AcquireCamera: failCamera,
		RecorderCfg: recorder.Config{
			Width:         160,
			Height:        90,
			FrameRate:     20,
			ChunkInterval: 100 * time.Millisecond,
		},
		Runner: runner.New(nil, nil),
	}
	if backend != nil {
		params.Backend = backend
	}
	if store != nil {
		params.Store = store
	}
	return session.New(params)
}

func TestNormalRunAndSubmit(t *testing.T) {
	backend := &memBackend{}
	store := &memStore{}
	s := newSession(t, exercise(api.SecurityConfig{
		FullScreenMode:         true,
		ScreenRecordingEnabled: true,
		CameraMicEnabled:       true,
		TimerEnabled:           true,
		DurationMinutes:        30,
	}), backend, store)

	require.Equal(t, proctor.AwaitingAgreement, s.Machine.State())
	s.Machine.Agree()
	require.NoError(t, s.Start(context.Background()))

	// Let the recorder flush a couple of chunks.
	time.Sleep(250 * time.Millisecond)

	res, err := s.RunCode(context.Background(), "javascript", `console.log("answer");`, "")
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Equal(t, "answer\n", res.Stdout)

	require.NoError(t, s.Submit(context.Background(), "javascript", `console.log("answer");`))
	require.Equal(t, proctor.Completed, s.Machine.State())

	progress, locks, artifact := backend.snapshot()
	require.Len(t, progress, 2)
	require.Equal(t, api.StatusAttempted, progress[0].Status)
	require.Equal(t, api.StatusSubmitted, progress[1].Status)
	require.Equal(t, "q1", progress[0].QuestionID)

	require.Len(t, locks, 1)
	require.Equal(t, api.StatusCompleted, locks[0].Status)
	require.False(t, locks[0].Lock)
	require.NotEmpty(t, artifact)
	require.NotNil(t, locks[0].RecordingURL)
	require.Contains(t, *locks[0].RecordingURL, "recordings.example.com")

	decoded, err := recorder.DecodeArtifact(artifact)
	require.NoError(t, err)
	require.NotEmpty(t, decoded)

	store.mu.Lock()
	require.Len(t, store.keys, 1)
	require.Equal(t, string(api.StatusCompleted), store.tags[0].Category)
	require.Equal(t, "student-1", store.tags[0].StudentID)
	store.mu.Unlock()
}

func TestTabSwitchViolationLocksSession(t *testing.T) {
	backend := &memBackend{}
	s := newSession(t, exercise(api.SecurityConfig{
		ScreenRecordingEnabled: true,
		MaxTabSwitches:         2,
	}), backend, nil)

	s.Machine.Agree()
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(150 * time.Millisecond)

	s.Machine.OnVisibilityChange(true)
	require.Equal(t, proctor.Running, s.Machine.State())
	s.Machine.OnVisibilityChange(true)
	require.Equal(t, proctor.Terminated, s.Machine.State())

	_, locks, artifact := backend.snapshot()
	require.Len(t, locks, 1)
	require.Equal(t, api.StatusTerminated, locks[0].Status)
	require.True(t, locks[0].Lock)
	require.Equal(t, 2, locks[0].TabSwitches)
	require.Contains(t, locks[0].Violations, proctor.ViolationTabSwitch)
	// The partial recording travels with the lock report even without a store.
	require.NotEmpty(t, artifact)

	// Runs after termination are refused.
	_, err := s.RunCode(context.Background(), "javascript", "1+1", "")
	require.Error(t, err)
}

func TestLanguageGate(t *testing.T) {
	s := newSession(t, exercise(api.SecurityConfig{}, api.Question{
		ID:               "q1",
		AllowedLanguages: []string{"python"},
	}), nil, nil)

	require.NoError(t, s.Start(context.Background()))

	_, err := s.RunCode(context.Background(), "javascript", "1+1", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not allowed")
}

func TestAttemptLimit(t *testing.T) {
	s := newSession(t, exercise(api.SecurityConfig{}, api.Question{
		ID:           "q1",
		AttemptLimit: 2,
	}), nil, nil)

	require.NoError(t, s.Start(context.Background()))

	for range 2 {
		_, err := s.RunCode(context.Background(), "javascript", "1+1", "")
		require.NoError(t, err)
	}
	_, err := s.RunCode(context.Background(), "javascript", "1+1", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "attempt limit")
}

func TestSkipAndNextGating(t *testing.T) {
	backend := &memBackend{}
	s := newSession(t, exercise(api.SecurityConfig{},
		api.Question{ID: "q1", AllowSkip: true},
		api.Question{ID: "q2"},
	), backend, nil)

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, 0, s.QuestionIndex())

	require.NoError(t, s.Skip(context.Background()))
	require.Equal(t, 1, s.QuestionIndex())

	// q2 allows neither skipping nor advancing without submission.
	require.Error(t, s.Skip(context.Background()))
	require.Error(t, s.NextQuestion())

	progress, _, _ := backend.snapshot()
	require.Len(t, progress, 1)
	require.Equal(t, api.StatusSkipped, progress[0].Status)
	require.Equal(t, "q1", progress[0].QuestionID)
}

func TestSubmitLastQuestionCompletes(t *testing.T) {
	backend := &memBackend{}
	s := newSession(t, exercise(api.SecurityConfig{},
		api.Question{ID: "q1", AllowNext: true},
		api.Question{ID: "q2"},
	), backend, nil)

	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Submit(context.Background(), "javascript", "1"))
	require.Equal(t, proctor.Running, s.Machine.State())
	require.Equal(t, 1, s.QuestionIndex())

	require.NoError(t, s.Submit(context.Background(), "javascript", "2"))
	require.Equal(t, proctor.Completed, s.Machine.State())

	_, locks, _ := backend.snapshot()
	require.Len(t, locks, 1)
	require.False(t, locks[0].Lock)
}

func TestRemoteRunCarriesConfiguredVersion(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got <- req["version"]
		json.NewEncoder(w).Encode(map[string]any{"stdout": "ok\n"})
	}))
	t.Cleanup(srv.Close)

	s := session.New(session.Params{
		StudentID: "student-1",
		Exercise: exercise(api.SecurityConfig{}, api.Question{
			ID:               "q1",
			LanguageVersions: map[string]string{"python": "3.11"},
		}),
		Platform:      grantAllPlatform{},
		AcquireScreen: stillScreen,
		Runner:        runner.New(sandbox.New(srv.URL, time.Second), nil),
	})

	require.NoError(t, s.Start(context.Background()))

	res, err := s.RunCode(context.Background(), "python", "print('ok')", "")
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Equal(t, "3.11", <-got)
}

func TestInteractiveInputDuringRun(t *testing.T) {
	s := newSession(t, exercise(api.SecurityConfig{}), nil, nil)
	require.NoError(t, s.Start(context.Background()))

	done := make(chan api.ExecRes, 1)
	go func() {
		res, err := s.RunCode(context.Background(), "javascript",
			`console.log("got " + input());`, "")
		require.NoError(t, err)
		done <- res
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !s.SubmitInput("42") {
		if time.Now().After(deadline) {
			t.Fatal("run never asked for input")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case res := <-done:
		require.Equal(t, "got 42\n", res.Stdout)
	case <-time.After(5 * time.Second):
		t.Fatal("interactive run never finished")
	}
}
