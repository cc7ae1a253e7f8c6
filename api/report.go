package api

// Status is the outcome attached to a progress or lock report.
type Status string

const (
	StatusAttempted  Status = "attempted"
	StatusSubmitted  Status = "submitted"
	StatusSkipped    Status = "skipped"
	StatusSolved     Status = "solved"
	StatusTerminated Status = "terminated"
	StatusCompleted  Status = "completed"
)

// ProgressReport is sent to the backend on run, submit, skip, termination
// and completion.
type ProgressReport struct {
	SessionUuid string `json:"session_uuid"`
	CourseID    string `json:"course_id"`
	ExerciseID  string `json:"exercise_id"`
	QuestionID  string `json:"question_id"`

	Code     string `json:"code"`
	Language string `json:"language"`

	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`

	// RecordingURL is the durable location of the uploaded composite
	// recording, set for terminal reports when a recording exists.
	RecordingURL *string `json:"recording_url,omitempty"`

	// Lock asks the backend to refuse further attempts until an instructor
	// unlocks the exercise for this learner.
	Lock bool `json:"lock"`

	TabSwitches int      `json:"tab_switches"`
	Violations  []string `json:"violations,omitempty"`
}
