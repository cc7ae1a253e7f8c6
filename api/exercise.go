package api

// Exercise is the externally supplied definition of one proctored exercise.
// Read-only to this service.
type Exercise struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Title    string `json:"title"`

	Questions []Question     `json:"questions"`
	Security  SecurityConfig `json:"security"`
}

// Question is a single prompt within an exercise.
type Question struct {
	ID   string `json:"id"`
	Text string `json:"text"`

	AllowedLanguages []string `json:"allowed_languages"`

	// LanguageVersions picks the runtime version sent to the sandbox per
	// language. A missing entry lets the sandbox use its default.
	LanguageVersions map[string]string `json:"language_versions,omitempty"`

	AllowSkip bool `json:"allow_skip"`
	AllowNext bool `json:"allow_next"`

	// AttemptLimit caps run attempts per question; zero means unlimited.
	AttemptLimit int `json:"attempt_limit"`
}
