package proctor

import "context"

// Violation kinds recorded against a session.
const (
	ViolationTabSwitch      = "tab-switch"
	ViolationFullscreenExit = "fullscreen-exit"
	ViolationClipboardCopy  = "clipboard-copy"
	ViolationClipboardPaste = "clipboard-paste"
)

// OnVisibilityChange handles a page visibility flip. Every hide event while
// running increments the tab-switch counter; reaching the configured maximum
// terminates the session exactly once.
func (m *Machine) OnVisibilityChange(hidden bool) {
	if !hidden {
		return
	}
	m.mu.Lock()
	if m.state != Running || !m.cfg.TabSwitchLimited() {
		m.mu.Unlock()
		return
	}
	m.tabSwitches++
	count := m.tabSwitches
	limit := m.cfg.TabSwitchLimit()
	m.violationKinds.Add(ViolationTabSwitch)
	m.mu.Unlock()

	m.rep.Violation(ViolationTabSwitch, "page hidden", count)
	m.logger.Warn("tab switch detected", "count", count, "limit", limit)

	if count >= limit {
		m.Terminate(ReasonTabSwitches)
	}
}

// OnFullscreenChange handles entering or leaving fullscreen. Any exit while
// fullscreen is required is treated uniformly, whether triggered by a
// control, an OS gesture or the Escape key: attempt a silent re-acquisition
// and fall back to the exit-confirmation decision point.
func (m *Machine) OnFullscreenChange(ctx context.Context, active bool) {
	m.mu.Lock()
	if m.state != Running || !m.cfg.FullScreenMode {
		m.mu.Unlock()
		return
	}
	if active {
		m.awaitingExitDecision = false
		m.controls.Add(ControlFullscreen)
		m.mu.Unlock()
		return
	}
	if m.awaitingExitDecision {
		m.mu.Unlock()
		return
	}
	m.awaitingExitDecision = true
	m.violationKinds.Add(ViolationFullscreenExit)
	m.controls.Remove(ControlFullscreen)
	m.mu.Unlock()

	m.rep.Violation(ViolationFullscreenExit, "fullscreen exited", 1)

	if err := m.platform.RequestFullscreen(ctx); err == nil {
		m.mu.Lock()
		m.awaitingExitDecision = false
		m.controls.Add(ControlFullscreen)
		m.mu.Unlock()
		return
	}
	// Recording keeps running through the confirmation window; the dialog
	// period is part of the audit record.
	m.platform.PromptExitConfirmation()
}

// OnKeyDown handles keyboard events reported by the client. Escape is an
// implicit fullscreen exit request and goes through the same path as any
// other exit.
func (m *Machine) OnKeyDown(ctx context.Context, key string) {
	if key == "Escape" {
		m.OnFullscreenChange(ctx, false)
	}
}

// ResolveExitPrompt completes the exit-confirmation decision point: resume
// re-enters fullscreen, anything else terminates with the user-initiated
// exit reason.
func (m *Machine) ResolveExitPrompt(ctx context.Context, resume bool) {
	m.mu.Lock()
	if m.state != Running || !m.awaitingExitDecision {
		m.mu.Unlock()
		return
	}
	m.awaitingExitDecision = false
	m.mu.Unlock()

	if !resume {
		m.Terminate(ReasonUserExit)
		return
	}
	if err := m.platform.RequestFullscreen(ctx); err != nil {
		m.logger.Warn("failed to re-enter fullscreen after resume", "error", err)
		m.mu.Lock()
		m.awaitingExitDecision = true
		m.mu.Unlock()
		m.platform.PromptExitConfirmation()
		return
	}
	m.controls.Add(ControlFullscreen)
}

// OnClipboard records a clipboard event. With the clipboard disabled the
// event is a logged violation but never terminates a session on its own.
func (m *Machine) OnClipboard(kind string) {
	m.mu.Lock()
	if m.state != Running || !m.cfg.DisableClipboard {
		m.mu.Unlock()
		return
	}
	m.clipboardEvents++
	count := m.clipboardEvents
	m.violationKinds.Add(kind)
	m.mu.Unlock()

	m.rep.Violation(kind, "clipboard use while disabled", count)
	m.logger.Warn("clipboard violation", "kind", kind, "count", count)
}
