package termio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/api"
)

// State of the interactive channel.
type State int

const (
	Idle State = iota
	Running
	WaitingForInput
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case WaitingForInput:
		return "waiting-for-input"
	}
	return "unknown"
}

var (
	// ErrInputPending is returned when a second input request is made while
	// one is already outstanding. The outstanding resolver is never
	// overwritten.
	ErrInputPending = errors.New("an input request is already pending")

	// ErrRunActive is returned by Clear while an execution is mid-flight.
	ErrRunActive = errors.New("cannot clear the log while a run is active")
)

// Channel mediates between an execution backend that wants a line of input
// and the human who must type it, and exposes the append-only session log.
// All methods are safe for concurrent use.
type Channel struct {
	mu      sync.Mutex
	state   State
	entries []api.LogEntry

	pending chan string
	cancel  chan struct{}

	onEntry func(api.LogEntry)
	onWait  func(waiting bool)
}

// New creates an idle channel. onEntry, if non-nil, observes every appended
// entry in append order; onWait observes waiting-state flips. Observers are
// called with the channel lock held and must not call back into the channel.
func New(onEntry func(api.LogEntry), onWait func(waiting bool)) *Channel {
	return &Channel{
		onEntry: onEntry,
		onWait:  onWait,
	}
}

// State returns the current channel state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Entries returns a snapshot of the log in insertion order.
func (c *Channel) Entries() []api.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Append adds one entry to the log. Entries are ordered by call sequence.
func (c *Channel) Append(kind api.LogKind, text string) api.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.append(kind, text)
}

func (c *Channel) append(kind api.LogKind, text string) api.LogEntry {
	entry := api.LogEntry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		Timestamp: time.Now(),
	}
	c.entries = append(c.entries, entry)
	if c.onEntry != nil {
		c.onEntry(entry)
	}
	return entry
}

// Clear empties the log. It is refused while a run is active so that an
// outstanding input request can never be orphaned.
func (c *Channel) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return ErrRunActive
	}
	c.entries = nil
	return nil
}

// BeginRun flips the channel into the running state.
func (c *Channel) BeginRun() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Running
}

// EndRun returns the channel to idle. Any input request still outstanding is
// cancelled so its caller is not left blocked forever.
func (c *Channel) EndRun() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
		c.pending = nil
		if c.onWait != nil {
			c.onWait(false)
		}
	}
	c.state = Idle
}

// RequestInput suspends the caller until SubmitInput supplies a line. At most
// one request may be outstanding; a concurrent second request fails with
// ErrInputPending rather than displacing the first resolver.
func (c *Channel) RequestInput(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return "", ErrInputPending
	}
	resolve := make(chan string, 1)
	cancel := make(chan struct{})
	c.pending = resolve
	c.cancel = cancel
	c.state = WaitingForInput
	if c.onWait != nil {
		c.onWait(true)
	}
	c.mu.Unlock()

	select {
	case line := <-resolve:
		return line, nil
	case <-cancel:
		return "", errors.New("input request cancelled")
	case <-ctx.Done():
		c.mu.Lock()
		if c.pending == resolve {
			c.pending = nil
			c.cancel = nil
			c.state = Running
			if c.onWait != nil {
				c.onWait(false)
			}
		}
		c.mu.Unlock()
		return "", ctx.Err()
	}
}

// SubmitInput resolves the outstanding input request with text, echoing it
// to the log. It is a no-op when nothing is pending.
func (c *Channel) SubmitInput(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return false
	}
	c.append(api.LogInputEcho, text)
	c.pending <- text
	c.pending = nil
	c.cancel = nil
	c.state = Running
	if c.onWait != nil {
		c.onWait(false)
	}
	return true
}
