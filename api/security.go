package api

// DefaultMaxTabSwitches applies when tab switching is limited but the
// exercise does not name a maximum.
const DefaultMaxTabSwitches = 3

// SecurityConfig describes the proctoring controls of one exercise. It is
// immutable for the lifetime of a session. An absent (zero) field means the
// corresponding control is inert, never a hidden stricter default.
type SecurityConfig struct {
	TimerEnabled    bool `json:"timer_enabled"`
	DurationMinutes int  `json:"duration_minutes"`

	FullScreenMode bool `json:"full_screen_mode"`

	CameraMicEnabled       bool `json:"camera_mic_enabled"`
	ScreenRecordingEnabled bool `json:"screen_recording_enabled"`

	// TabSwitchAllowed permits a limited number of tab switches; crossing
	// the limit terminates the session. With neither field set the control
	// is inert and hide events go uncounted.
	TabSwitchAllowed bool `json:"tab_switch_allowed"`
	MaxTabSwitches   int  `json:"max_tab_switches"`

	DisableClipboard bool `json:"disable_clipboard"`
}

// TabSwitchLimited reports whether the tab-switch control is configured at
// all. An all-absent configuration leaves hide events uncounted.
func (c SecurityConfig) TabSwitchLimited() bool {
	return c.TabSwitchAllowed || c.MaxTabSwitches > 0
}

// TabSwitchLimit resolves the effective tab-switch maximum.
func (c SecurityConfig) TabSwitchLimit() int {
	if c.MaxTabSwitches > 0 {
		return c.MaxTabSwitches
	}
	return DefaultMaxTabSwitches
}

// RequiresAgreement reports whether the exercise needs an explicit consent
// step before a session may start.
func (c SecurityConfig) RequiresAgreement() bool {
	return c.FullScreenMode || c.CameraMicEnabled || c.ScreenRecordingEnabled ||
		c.TimerEnabled || c.DisableClipboard
}
