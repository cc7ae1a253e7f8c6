package main

import (
	"context"
	"fmt"
	imgcolor "image/color"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/behave"
	"github.com/programme-lv/proctor/internal/environment"
	"github.com/programme-lv/proctor/internal/proctor"
	"github.com/programme-lv/proctor/internal/recorder"
	"github.com/programme-lv/proctor/internal/reporter"
	"github.com/programme-lv/proctor/internal/reporter/httprep"
	"github.com/programme-lv/proctor/internal/reporter/natsrep"
	"github.com/programme-lv/proctor/internal/reporter/sqsrep"
	"github.com/programme-lv/proctor/internal/reporter/termrep"
	"github.com/programme-lv/proctor/internal/runner"
	"github.com/programme-lv/proctor/internal/runner/sandbox"
	"github.com/programme-lv/proctor/internal/s3upl"
	"github.com/programme-lv/proctor/internal/session"
	"github.com/programme-lv/proctor/internal/termio"
	"github.com/programme-lv/proctor/internal/wshub"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "proctor",
		Usage: "proctored in-browser assessment runtime",
		Commands: []*cli.Command{
			serveCommand(),
			behaveCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
	}))
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the websocket assessment service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the TOML config file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := newLogger()
			slog.SetDefault(logger)

			env := environment.ReadEnvConfig()
			fcfg, err := environment.ReadFileConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			return serve(ctx, env, fcfg, logger)
		},
	}
}

func serve(ctx context.Context, env *environment.EnvConfig, fcfg environment.FileConfig, logger *slog.Logger) error {
	if env.SandboxURL == "" {
		return fmt.Errorf("SANDBOX_URL is not configured")
	}

	run := runner.New(
		sandbox.New(env.SandboxURL, time.Duration(fcfg.SandboxTimeoutSec)*time.Second),
		logger,
	)

	var backend session.ProgressSink
	if env.BackendURL != "" {
		backend = httprep.New(env.BackendURL, time.Duration(fcfg.ReportTimeoutSec)*time.Second)
	} else {
		logger.Warn("BACKEND_URL not set, progress reporting disabled")
	}

	var store session.ArtifactStore
	if env.S3Bucket != "" {
		upl, err := s3upl.New(ctx, env.AwsRegion, env.S3Bucket)
		if err != nil {
			return fmt.Errorf("failed to init recording uploader: %w", err)
		}
		store = upl
	} else {
		logger.Warn("RECORDINGS_S3_BUCKET not set, recordings will not be persisted")
	}

	var nc *nats.Conn
	if env.NatsURL != "" {
		var err error
		nc, err = nats.Connect(env.NatsURL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()
	}

	hub := wshub.NewHub(logger)
	go hub.Run()

	makeReporters := func(sessionUuid string) []reporter.Reporter {
		var reps []reporter.Reporter
		if nc != nil {
			subject := fcfg.EventSubjectPrefix + "." + sessionUuid
			reps = append(reps, natsrep.New(nc, sessionUuid, subject))
		}
		if env.AuditSqsUrl != "" {
			rep, err := sqsrep.New(context.Background(), env.AwsRegion, sessionUuid, env.AuditSqsUrl)
			if err != nil {
				logger.Warn("failed to init audit reporter", "error", err)
			} else {
				reps = append(reps, rep)
			}
		}
		return reps
	}

	deps := wshub.Deps{
		Runner:   run,
		Backend:  backend,
		Store:    store,
		Registry: session.NewRegistry(),
		Hub:      hub,
		RecorderCfg: recorder.Config{
			Width:         fcfg.CanvasWidth,
			Height:        fcfg.CanvasHeight,
			FrameRate:     fcfg.FrameRate,
			ChunkInterval: fcfg.ChunkInterval(),
		},
		MakeReporters: makeReporters,
		Logger:        logger,
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1 << 16,
		WriteBufferSize: 1 << 16,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		wshub.NewConn(ws, deps).Serve()
	})
	mux.HandleFunc("/observe", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		hub.Register(ws)
		// Observers only listen; the read loop exists to detect disconnects.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				hub.Unregister(ws)
				return
			}
		}
	})

	logger.Info("listening", "addr", fcfg.ListenAddr)
	return http.ListenAndServe(fcfg.ListenAddr, mux)
}

func behaveCommand() *cli.Command {
	return &cli.Command{
		Name:  "behave",
		Usage: "drive scripted assessment scenarios locally",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "path to the scenario TOML file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "sandbox-url",
				Usage: "remote sandbox endpoint for non-JavaScript runs",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := newLogger()
			slog.SetDefault(logger)

			cases, err := behave.Parse(cmd.String("file"))
			if err != nil {
				return err
			}

			run := runner.New(sandbox.New(cmd.String("sandbox-url"), 0), logger)
			failed := 0
			for _, c := range cases {
				fmt.Printf("\n### %s\n", c.Name)
				if err := runScenario(ctx, c, run, logger); err != nil {
					color.Red("FAIL: %v", err)
					failed++
				} else {
					color.Green("PASS")
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(cases))
			}
			return nil
		},
	}
}

// scriptPlatform stands in for the learner's browser during scenario drives.
// Fullscreen requests are granted until a deny_fullscreen event flips it.
type scriptPlatform struct {
	denyFullscreen bool
}

func (p *scriptPlatform) RequestFullscreen(ctx context.Context) error {
	if p.denyFullscreen {
		return fmt.Errorf("fullscreen denied by scenario")
	}
	return nil
}

func (p *scriptPlatform) ExitFullscreen()         {}
func (p *scriptPlatform) PromptExitConfirmation() {}

func runScenario(ctx context.Context, c behave.Case, run *runner.Runner, logger *slog.Logger) error {
	platform := &scriptPlatform{}
	id := uuid.NewString()

	s := session.New(session.Params{
		ID:            id,
		StudentID:     "behave",
		Exercise:      c.Exercise,
		Platform:      platform,
		AcquireScreen: stillAcquire(imgcolor.RGBA{R: 30, G: 30, B: 40, A: 255}),
		AcquireCamera: stillAcquire(imgcolor.RGBA{R: 120, G: 90, B: 70, A: 255}),
		RecorderCfg: recorder.Config{
			Width:         320,
			Height:        180,
			FrameRate:     10,
			ChunkInterval: 200 * time.Millisecond,
		},
		Runner: run,
		Rep:    termrep.New(id),
		OnLog: func(entry api.LogEntry) {
			fmt.Printf("   [%s] %s\n", entry.Kind, entry.Text)
		},
		Logger: logger,
	})

	// Leftover recorders must not bleed into the next scenario.
	defer func() {
		if s.Machine.State() == proctor.Running {
			s.Machine.Complete("scenario drive finished")
		}
	}()

	if s.Machine.State() == proctor.AwaitingAgreement {
		s.Machine.Agree()
	}
	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	for _, r := range c.Runs {
		if err := driveRun(ctx, s, r); err != nil {
			return err
		}
	}

	for _, ev := range c.Events {
		applyEvent(ctx, s, platform, ev)
	}

	if c.Submit && s.Machine.State() == proctor.Running {
		if err := s.Submit(ctx, "", ""); err != nil {
			return fmt.Errorf("failed to submit: %w", err)
		}
	}

	return checkExpect(s, c.Expect)
}

func driveRun(ctx context.Context, s *session.Session, r behave.SpecRun) error {
	if len(r.Inputs) > 0 {
		go feedInputs(s, r.Inputs)
	}
	res, err := s.RunCode(ctx, r.Language, r.Code, r.Stdin)
	if err != nil {
		return fmt.Errorf("run was refused: %w", err)
	}
	if r.ExpectError != res.Failed() {
		return fmt.Errorf("expected failed=%v, got failed=%v", r.ExpectError, res.Failed())
	}
	if r.ExpectOutput != "" && strings.TrimSpace(res.Stdout) != strings.TrimSpace(r.ExpectOutput) {
		return fmt.Errorf("expected output %q, got %q", r.ExpectOutput, res.Stdout)
	}
	return nil
}

// feedInputs answers interactive input prompts in order, polling the channel
// state the way a human watches the waiting indicator.
func feedInputs(s *session.Session, inputs []string) {
	deadline := time.Now().Add(30 * time.Second)
	for _, in := range inputs {
		for s.Channel.State() != termio.WaitingForInput {
			if time.Now().After(deadline) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		s.SubmitInput(in)
	}
}

func applyEvent(ctx context.Context, s *session.Session, platform *scriptPlatform, ev behave.SpecEvent) {
	switch ev.Kind {
	case "visibility_hidden":
		s.Machine.OnVisibilityChange(true)
	case "visibility_visible":
		s.Machine.OnVisibilityChange(false)
	case "deny_fullscreen":
		platform.denyFullscreen = true
	case "grant_fullscreen":
		platform.denyFullscreen = false
	case "fullscreen_exit":
		s.Machine.OnFullscreenChange(ctx, false)
	case "fullscreen_enter":
		s.Machine.OnFullscreenChange(ctx, true)
	case "key":
		s.Machine.OnKeyDown(ctx, ev.Key)
	case "clipboard_copy":
		s.Machine.OnClipboard(proctor.ViolationClipboardCopy)
	case "clipboard_paste":
		s.Machine.OnClipboard(proctor.ViolationClipboardPaste)
	case "exit_resume":
		s.Machine.ResolveExitPrompt(ctx, true)
	case "exit_terminate":
		s.Machine.ResolveExitPrompt(ctx, false)
	default:
		slog.Warn("unknown scenario event", "kind", ev.Kind)
	}
}

func checkExpect(s *session.Session, exp behave.SpecExpect) error {
	if exp.State != "" && s.Machine.State().String() != exp.State {
		return fmt.Errorf("expected state %s, got %s", exp.State, s.Machine.State())
	}
	if exp.TabSwitches != 0 && s.Machine.TabSwitches() != exp.TabSwitches {
		return fmt.Errorf("expected %d tab switches, got %d", exp.TabSwitches, s.Machine.TabSwitches())
	}
	return nil
}

func stillAcquire(c imgcolor.RGBA) recorder.AcquireFunc {
	return func(ctx context.Context) (recorder.Source, error) {
		return recorder.NewColorSource(c, 640, 360), nil
	}
}
