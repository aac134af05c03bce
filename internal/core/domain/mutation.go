package domain

import (
	"encoding/json"
	"time"
)

// MutationType identifies which command a queued write intent replays.
type MutationType string

const (
	MutationCameraFavorite  MutationType = "camera:favorite"
	MutationCameraRecording MutationType = "camera:recording"
	MutationCameraSettings  MutationType = "camera:update"
	MutationTaskUpdate      MutationType = "task:update"
)

// PendingMutation is a durable write intent that could not reach the
// server. Entries are replayed in CreatedAt order and removed only after
// the server acknowledges them; Retries counts failed replay attempts.
type PendingMutation struct {
	ID          string          `json:"id"`
	Type        MutationType    `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"createdAt"`
	Retries     int             `json:"retries"`
	Fingerprint uint64          `json:"fingerprint"`
}

// Mutation payloads. Field names are part of the replay contract and match
// what the command originally sent.

type FavoritePayload struct {
	CameraID string `json:"cameraId"`
	Target   bool   `json:"target"`
}

type RecordingPayload struct {
	CameraID     string `json:"cameraId"`
	ShouldRecord bool   `json:"shouldRecord"`
}

type SettingsPayload struct {
	CameraID string              `json:"cameraId"`
	Settings CameraSettingsPatch `json:"settings"`
}

type TaskUpdatePayload struct {
	TaskID  string    `json:"taskId"`
	Changes TaskPatch `json:"changes"`
}
