// Package domain holds the entity types shared by the sync core: cameras,
// tasks, log entries and pending mutations. Entities are snapshots keyed by
// an opaque id; whoever produced a snapshot stamps UpdatedAt.
package domain

import "time"

type CameraStatus string

const (
	CameraOnline    CameraStatus = "ONLINE"
	CameraOffline   CameraStatus = "OFFLINE"
	CameraRecording CameraStatus = "RECORDING"
)

type CameraType string

const (
	CameraTypeIP      CameraType = "IP"
	CameraTypeUSB     CameraType = "USB"
	CameraTypeAndroid CameraType = "Android"
)

type MotionDetection struct {
	Enabled     bool `json:"enabled"`
	Sensitivity int  `json:"sensitivity"`
}

type RecordingPolicy struct {
	Mode          string `json:"mode"`
	RetentionDays int    `json:"retentionDays"`
}

type CameraSettings struct {
	Brightness      int             `json:"brightness"`
	Contrast        int             `json:"contrast"`
	IsNightVision   bool            `json:"isNightVision"`
	Resolution      string          `json:"resolution"`
	FPS             int             `json:"fps"`
	Bitrate         int             `json:"bitrate"`
	Codec           string          `json:"codec"`
	MotionDetection MotionDetection `json:"motionDetection"`
	Recording       RecordingPolicy `json:"recording"`
}

// Camera is a full entity snapshot as produced by the server, a push event
// or an optimistic local write.
type Camera struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       CameraType     `json:"type"`
	URL        string         `json:"url"`
	Status     CameraStatus   `json:"status"`
	Ping       int            `json:"ping"`
	Signal     int            `json:"signal"`
	LastSeen   time.Time      `json:"lastSeen"`
	IsFavorite bool           `json:"isFavorite"`
	Location   string         `json:"location"`
	Tags       []string       `json:"tags,omitempty"`
	Settings   CameraSettings `json:"settings"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// CameraSettingsPatch carries a partial settings update. Nil members are
// left untouched by the server.
type CameraSettingsPatch struct {
	Brightness    *int    `json:"brightness,omitempty"`
	Contrast      *int    `json:"contrast,omitempty"`
	IsNightVision *bool   `json:"isNightVision,omitempty"`
	Resolution    *string `json:"resolution,omitempty"`
	FPS           *int    `json:"fps,omitempty"`
	Bitrate       *int    `json:"bitrate,omitempty"`
	Codec         *string `json:"codec,omitempty"`
}

// Apply merges the patch into a settings snapshot, for optimistic local
// application ahead of server confirmation.
func (p CameraSettingsPatch) Apply(s CameraSettings) CameraSettings {
	if p.Brightness != nil {
		s.Brightness = *p.Brightness
	}
	if p.Contrast != nil {
		s.Contrast = *p.Contrast
	}
	if p.IsNightVision != nil {
		s.IsNightVision = *p.IsNightVision
	}
	if p.Resolution != nil {
		s.Resolution = *p.Resolution
	}
	if p.FPS != nil {
		s.FPS = *p.FPS
	}
	if p.Bitrate != nil {
		s.Bitrate = *p.Bitrate
	}
	if p.Codec != nil {
		s.Codec = *p.Codec
	}
	return s
}
