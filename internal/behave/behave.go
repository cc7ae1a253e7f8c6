// Package behave parses TOML-described assessment scenarios: a security
// configuration, a scripted sequence of platform events and runs, and the
// expected terminal state. Used to drive the full core end to end without
// a browser.
package behave

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/proctor/api"
)

// SpecSecurity mirrors api.SecurityConfig in the behaviour file.
type SpecSecurity struct {
	TimerEnabled    bool `toml:"timer_enabled"`
	DurationMinutes int  `toml:"duration_minutes"`

	FullScreenMode bool `toml:"full_screen_mode"`

	CameraMicEnabled       bool `toml:"camera_mic_enabled"`
	ScreenRecordingEnabled bool `toml:"screen_recording_enabled"`

	TabSwitchAllowed bool `toml:"tab_switch_allowed"`
	MaxTabSwitches   int  `toml:"max_tab_switches"`

	DisableClipboard bool `toml:"disable_clipboard"`
}

// SpecEvent is one scripted platform event.
type SpecEvent struct {
	// Kind is one of: visibility_hidden, visibility_visible,
	// fullscreen_exit, fullscreen_enter, key, clipboard_copy,
	// clipboard_paste, exit_resume, exit_terminate.
	Kind string `toml:"kind"`
	Key  string `toml:"key"`
}

// SpecRun is one scripted execution.
type SpecRun struct {
	Language string   `toml:"language"`
	Code     string   `toml:"code"`
	Stdin    string   `toml:"stdin"`
	Inputs   []string `toml:"inputs"`

	ExpectOutput string `toml:"expect_output"`
	ExpectError  bool   `toml:"expect_error"`
}

// SpecExpect is the expected terminal condition of the scenario.
type SpecExpect struct {
	State       string `toml:"state"`
	Reason      string `toml:"reason"`
	TabSwitches int    `toml:"tab_switches"`
}

type specScenario struct {
	Description string       `toml:"description"`
	Security    SpecSecurity `toml:"security"`
	Submit      bool         `toml:"submit"`
	Events      []SpecEvent  `toml:"events"`
	Runs        []SpecRun    `toml:"runs"`
	Expect      SpecExpect   `toml:"expect"`
}

type specRoot struct {
	Scenarios []specScenario `toml:"scenarios"`
}

// Case is a runnable scenario converted from TOML.
type Case struct {
	Name     string
	Exercise api.Exercise
	Submit   bool
	Events   []SpecEvent
	Runs     []SpecRun
	Expect   SpecExpect
}

// Parse reads a behaviour TOML file and converts it to runnable cases.
func Parse(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read behaviour file: %w", err)
	}
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cases := make([]Case, 0, len(root.Scenarios))
	for _, sc := range root.Scenarios {
		if sc.Description == "" {
			return nil, fmt.Errorf("scenario entry is missing a description")
		}
		sec := api.SecurityConfig{
			TimerEnabled:           sc.Security.TimerEnabled,
			DurationMinutes:        sc.Security.DurationMinutes,
			FullScreenMode:         sc.Security.FullScreenMode,
			CameraMicEnabled:       sc.Security.CameraMicEnabled,
			ScreenRecordingEnabled: sc.Security.ScreenRecordingEnabled,
			TabSwitchAllowed:       sc.Security.TabSwitchAllowed,
			MaxTabSwitches:         sc.Security.MaxTabSwitches,
			DisableClipboard:       sc.Security.DisableClipboard,
		}
		exercise := api.Exercise{
			ID:       uuid.NewString(),
			CourseID: "behave",
			Title:    sc.Description,
			Questions: []api.Question{{
				ID:               uuid.NewString(),
				Text:             sc.Description,
				AllowedLanguages: nil,
			}},
			Security: sec,
		}
		cases = append(cases, Case{
			Name:     sc.Description,
			Exercise: exercise,
			Submit:   sc.Submit,
			Events:   sc.Events,
			Runs:     sc.Runs,
			Expect:   sc.Expect,
		})
	}
	return cases, nil
}
