package realtime

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/kamrah/camsync/internal/core/domain"
)

// EventKind is the wire tag of an inbound realtime message.
type EventKind string

const (
	EventConnected            EventKind = "connected"
	EventCameraStatusUpdate   EventKind = "camera_status_update"
	EventCameraSettingsUpdate EventKind = "camera_settings_update"
	EventCameraAdded          EventKind = "camera_added"
	EventCameraRemoved        EventKind = "camera_removed"
	EventTaskCreated          EventKind = "task_created"
	EventTaskUpdated          EventKind = "task_updated"
	EventTaskTriggered        EventKind = "task_triggered"
	EventTaskDeleted          EventKind = "task_deleted"
	EventLogEntry             EventKind = "log_entry"
)

// Envelope is the raw wire shape of every realtime message.
type Envelope struct {
	Event   EventKind       `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Event is one decoded push notification. Exactly one of Camera, Task,
// Log or EntityID is set, depending on Kind.
type Event struct {
	Kind     EventKind
	Camera   *domain.Camera
	Task     *domain.Task
	Log      *domain.LogEntry
	EntityID string
}

// decodeEvent parses a frame into an Event. The second return is false
// for tags this client does not know, which are skipped rather than
// treated as errors. A non-nil error means the frame is malformed.
func decodeEvent(data []byte) (Event, bool, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, false, errors.Wrap(err, "decode envelope")
	}

	switch env.Event {
	case EventConnected:
		return Event{Kind: env.Event}, true, nil

	case EventCameraStatusUpdate, EventCameraSettingsUpdate, EventCameraAdded:
		var cam domain.Camera
		if err := json.Unmarshal(env.Payload, &cam); err != nil {
			return Event{}, false, errors.Wrap(err, "decode camera payload")
		}
		if cam.ID == "" {
			return Event{}, false, errors.New("camera payload missing id")
		}
		return Event{Kind: env.Event, Camera: &cam}, true, nil

	case EventCameraRemoved, EventTaskDeleted:
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(env.Payload, &ref); err != nil {
			return Event{}, false, errors.Wrap(err, "decode removal payload")
		}
		if ref.ID == "" {
			return Event{}, false, errors.New("removal payload missing id")
		}
		return Event{Kind: env.Event, EntityID: ref.ID}, true, nil

	case EventTaskCreated, EventTaskUpdated, EventTaskTriggered:
		var task domain.Task
		if err := json.Unmarshal(env.Payload, &task); err != nil {
			return Event{}, false, errors.Wrap(err, "decode task payload")
		}
		if task.ID == "" {
			return Event{}, false, errors.New("task payload missing id")
		}
		return Event{Kind: env.Event, Task: &task}, true, nil

	case EventLogEntry:
		var entry struct {
			Message   string          `json:"message"`
			Level     domain.LogLevel `json:"level"`
			Timestamp time.Time       `json:"timestamp"`
		}
		if err := json.Unmarshal(env.Payload, &entry); err != nil {
			return Event{}, false, errors.Wrap(err, "decode log payload")
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now()
		}
		if entry.Level == "" {
			entry.Level = domain.LogInfo
		}
		return Event{Kind: env.Event, Log: &domain.LogEntry{
			Message:   entry.Message,
			Level:     entry.Level,
			Timestamp: entry.Timestamp,
		}}, true, nil

	default:
		return Event{}, false, nil
	}
}
