package syncer

import "github.com/pkg/errors"

var (
	// ErrUnknownCamera is returned by camera commands when the target id
	// is not in the local cache.
	ErrUnknownCamera = errors.New("unknown camera")

	// ErrUnknownTask is returned by task commands when the target id is
	// not in the local cache.
	ErrUnknownTask = errors.New("unknown task")

	// ErrCameraOffline rejects recording commands against a camera the
	// server last reported as offline.
	ErrCameraOffline = errors.New("camera is offline")

	// ErrNotRunning is returned by operations that need a started syncer.
	ErrNotRunning = errors.New("syncer is not running")
)
