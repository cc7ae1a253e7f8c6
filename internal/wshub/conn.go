package wshub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/recorder"
	"github.com/programme-lv/proctor/internal/reporter"
	"github.com/programme-lv/proctor/internal/runner"
	"github.com/programme-lv/proctor/internal/session"
)

// Deps is everything a learner connection needs to assemble a session.
type Deps struct {
	Runner      *runner.Runner
	Backend     session.ProgressSink
	Store       session.ArtifactStore
	Registry    *session.Registry
	Hub         *Hub
	RecorderCfg recorder.Config

	// MakeReporters builds extra per-session reporters (NATS stream, SQS
	// audit trail). May be nil.
	MakeReporters func(sessionUuid string) []reporter.Reporter

	Logger *slog.Logger
}

// Conn is one learner's websocket connection. It is the platform boundary
// of the session: fullscreen requests and exit prompts travel out, platform
// events and frames travel in.
type Conn struct {
	ws   *websocket.Conn
	deps Deps

	out    chan []byte
	closed chan struct{}

	mu      sync.Mutex
	session *session.Session
	fsAck   chan bool

	screenFeed *streamFeed
	cameraFeed *streamFeed

	logger *slog.Logger
}

// Inbound client message. One struct covers every type; unused fields stay
// zero.
type inbound struct {
	Type string `json:"type"`

	StudentID string        `json:"student_id,omitempty"`
	Exercise  *api.Exercise `json:"exercise,omitempty"`

	Language string `json:"language,omitempty"`
	Code     string `json:"code,omitempty"`
	Stdin    string `json:"stdin,omitempty"`
	Text     string `json:"text,omitempty"`

	Active bool   `json:"active,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
	Key    string `json:"key,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Ok     bool   `json:"ok,omitempty"`
	Resume bool   `json:"resume,omitempty"`
}

type outbound struct {
	Type   string        `json:"type"`
	Entry  *api.LogEntry `json:"entry,omitempty"`
	Result *api.ExecRes  `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
	State  string        `json:"state,omitempty"`
}

// NewConn wraps an accepted websocket connection.
func NewConn(ws *websocket.Conn, deps Deps) *Conn {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		ws:         ws,
		deps:       deps,
		out:        make(chan []byte, 256),
		closed:     make(chan struct{}),
		screenFeed: newStreamFeed(),
		cameraFeed: newStreamFeed(),
		logger:     logger,
	}
}

// Serve runs the read and write pumps until the connection drops. A live
// session is terminated when its connection goes away: an unattended
// assessment must not keep running.
func (c *Conn) Serve() {
	go c.writePump()
	c.readPump()

	close(c.closed)
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s != nil {
		s.Machine.Terminate("connection lost")
		c.deps.Registry.Remove(s.ID)
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case msg := <-c.out:
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) send(msg outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Warn("failed to marshal outbound message", "error", err)
		return
	}
	select {
	case c.out <- data:
	default:
		c.logger.Warn("outbound queue full, dropping message", "type", msg.Type)
	}
}

func (c *Conn) sendRaw(msgType string) {
	c.send(outbound{Type: msgType})
}

func (c *Conn) readPump() {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			c.handleFrame(data)
		case websocket.TextMessage:
			var msg inbound
			if err := json.Unmarshal(data, &msg); err != nil {
				c.send(outbound{Type: "error", Error: "malformed message"})
				continue
			}
			c.handleMessage(msg)
		}
	}
}

func (c *Conn) handleFrame(data []byte) {
	if len(data) < 2 {
		return
	}
	var feed *streamFeed
	switch data[0] {
	case StreamScreen:
		feed = c.screenFeed
	case StreamCamera:
		feed = c.cameraFeed
	default:
		return
	}
	if err := feed.push(data[1:]); err != nil {
		c.logger.Warn("dropped bad frame", "error", err)
	}
}

func (c *Conn) handleMessage(msg inbound) {
	s := c.currentSession()
	if s == nil && msg.Type != "open" {
		c.send(outbound{Type: "error", Error: "no session is open"})
		return
	}

	switch msg.Type {
	case "open":
		c.handleOpen(msg)
	case "agree":
		s.Machine.Agree()
	case "decline":
		s.Machine.Decline()
		c.send(outbound{Type: "state", State: s.Machine.State().String()})
	case "start":
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if err := s.Start(ctx); err != nil {
				c.send(outbound{Type: "error", Error: err.Error()})
				return
			}
			c.send(outbound{Type: "state", State: s.Machine.State().String()})
		}()
	case "run":
		go func() {
			res, err := s.RunCode(context.Background(), msg.Language, msg.Code, msg.Stdin)
			if err != nil {
				c.send(outbound{Type: "error", Error: err.Error()})
				return
			}
			c.send(outbound{Type: "result", Result: &res})
		}()
	case "input":
		s.SubmitInput(msg.Text)
	case "submit":
		go func() {
			if err := s.Submit(context.Background(), msg.Language, msg.Code); err != nil {
				c.send(outbound{Type: "error", Error: err.Error()})
				return
			}
			c.send(outbound{Type: "state", State: s.Machine.State().String()})
		}()
	case "skip":
		if err := s.Skip(context.Background()); err != nil {
			c.send(outbound{Type: "error", Error: err.Error()})
		}
	case "next":
		if err := s.NextQuestion(); err != nil {
			c.send(outbound{Type: "error", Error: err.Error()})
		}
	case "clear":
		if err := s.Channel.Clear(); err != nil {
			c.send(outbound{Type: "error", Error: err.Error()})
		}
	case "event_fullscreen":
		s.Machine.OnFullscreenChange(context.Background(), msg.Active)
	case "event_visibility":
		s.Machine.OnVisibilityChange(msg.Hidden)
	case "event_keydown":
		s.Machine.OnKeyDown(context.Background(), msg.Key)
	case "event_clipboard":
		s.Machine.OnClipboard(msg.Kind)
	case "fullscreen_result":
		c.resolveFullscreen(msg.Ok)
	case "exit_decision":
		s.Machine.ResolveExitPrompt(context.Background(), msg.Resume)
	default:
		c.send(outbound{Type: "error", Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (c *Conn) currentSession() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Conn) handleOpen(msg inbound) {
	if msg.Exercise == nil {
		c.send(outbound{Type: "error", Error: "open requires an exercise definition"})
		return
	}
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		c.send(outbound{Type: "error", Error: "a session is already open"})
		return
	}
	c.mu.Unlock()

	id := uuid.NewString()
	reps := reporter.Multi{c.deps.Hub.Reporter(id)}
	if c.deps.MakeReporters != nil {
		reps = append(reps, c.deps.MakeReporters(id)...)
	}

	s := session.New(session.Params{
		ID:            id,
		StudentID:     msg.StudentID,
		Exercise:      *msg.Exercise,
		Platform:      c,
		AcquireScreen: c.screenFeed.acquire,
		AcquireCamera: c.cameraFeed.acquire,
		RecorderCfg:   c.deps.RecorderCfg,
		Runner:        c.deps.Runner,
		Backend:       c.deps.Backend,
		Store:         c.deps.Store,
		Rep:           reps,
		OnLog: func(entry api.LogEntry) {
			e := entry
			c.send(outbound{Type: "log", Entry: &e})
		},
		Logger: c.logger,
	})

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.deps.Registry.Add(s)
	c.send(outbound{Type: "state", State: s.Machine.State().String()})
}

// RequestFullscreen implements proctor.Platform: it asks the client to
// enter fullscreen and suspends until the client answers or the context
// expires.
func (c *Conn) RequestFullscreen(ctx context.Context) error {
	c.mu.Lock()
	if c.fsAck != nil {
		c.mu.Unlock()
		return fmt.Errorf("a fullscreen request is already in flight")
	}
	ack := make(chan bool, 1)
	c.fsAck = ack
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.fsAck = nil
		c.mu.Unlock()
	}()

	c.sendRaw("request_fullscreen")

	select {
	case ok := <-ack:
		if !ok {
			return fmt.Errorf("fullscreen was denied by the user")
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fullscreen request timed out: %w", ctx.Err())
	case <-c.closed:
		return fmt.Errorf("connection closed during fullscreen request")
	}
}

func (c *Conn) resolveFullscreen(ok bool) {
	c.mu.Lock()
	ack := c.fsAck
	c.mu.Unlock()
	if ack != nil {
		select {
		case ack <- ok:
		default:
		}
	}
}

// ExitFullscreen implements proctor.Platform.
func (c *Conn) ExitFullscreen() {
	c.sendRaw("exit_fullscreen")
}

// PromptExitConfirmation implements proctor.Platform.
func (c *Conn) PromptExitConfirmation() {
	c.sendRaw("exit_confirmation")
}
