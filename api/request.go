package api

// ExecReq is a request to run learner-authored code.
type ExecReq struct {
	SessionUuid string `json:"session_uuid"`

	Language string `json:"language"`
	Version  string `json:"version"`
	Code     string `json:"code"`

	// Stdin is the pre-supplied input blob. The remote sandbox supports no
	// other input channel; the local backend consumes it line by line before
	// falling back to interactive prompts.
	Stdin string `json:"stdin"`
}

// ExecRes is the outcome of a single run. Exactly one of a successful output
// or an error message is the primary signal, though both may be non-empty
// when a program printed partial output before crashing.
type ExecRes struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	ErrorMessage *string `json:"error_message,omitempty"`
	WallMillis   *int64  `json:"wall_ms,omitempty"`
}

// Failed reports whether the error message is the primary signal.
func (r ExecRes) Failed() bool {
	return r.ErrorMessage != nil
}
