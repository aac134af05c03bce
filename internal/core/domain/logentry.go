package domain

import "time"

type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is an informational event shown in the dashboard's activity
// feed. Entries come from server pushes or from local sync activity.
type LogEntry struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Level     LogLevel  `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}
