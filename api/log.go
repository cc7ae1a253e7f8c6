package api

import "time"

// LogKind classifies a terminal log entry.
type LogKind string

const (
	LogOutput    LogKind = "output"
	LogErrOutput LogKind = "error-output"
	LogInputEcho LogKind = "user-input-echo"
	LogSystem    LogKind = "system-message"
	LogWarning   LogKind = "warning"
	LogSuccess   LogKind = "success"
	LogInfo      LogKind = "info"
)

// LogEntry is one line of the append-only session terminal log. Insertion
// order is display order; entries are never reordered or deleted except by
// an explicit clear.
type LogEntry struct {
	ID        string    `json:"id"`
	Kind      LogKind   `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
