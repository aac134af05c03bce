package syncer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kamrah/camsync/internal/core/api"
	"github.com/kamrah/camsync/internal/core/domain"
	"github.com/kamrah/camsync/internal/core/observability/log"
)

// Commands follow one shape: apply the change optimistically so the UI
// responds immediately, then either deliver it to the server (online) or
// park it in the durable queue (offline or retryable failure). A server
// reply is always authoritative and overwrites the optimistic snapshot.

// ToggleFavorite flips the favorite flag of a camera.
func (s *Syncer) ToggleFavorite(ctx context.Context, cameraID string) error {
	cam, ok := s.cache.Camera(cameraID)
	if !ok {
		return ErrUnknownCamera
	}
	target := !cam.IsFavorite

	cam.IsFavorite = target
	cam.UpdatedAt = time.Now()
	s.applyCamera(cam)

	payload := domain.FavoritePayload{CameraID: cameraID, Target: target}
	return s.deliverCamera(ctx, domain.MutationCameraFavorite, cameraID, payload, func(ctx context.Context) (domain.Camera, error) {
		return s.client.ToggleFavorite(ctx, cameraID, target)
	})
}

// ToggleRecording starts or stops recording on a camera. An offline
// camera cannot record.
func (s *Syncer) ToggleRecording(ctx context.Context, cameraID string) error {
	cam, ok := s.cache.Camera(cameraID)
	if !ok {
		return ErrUnknownCamera
	}
	if cam.Status == domain.CameraOffline {
		return ErrCameraOffline
	}
	shouldRecord := cam.Status != domain.CameraRecording

	if shouldRecord {
		cam.Status = domain.CameraRecording
	} else {
		cam.Status = domain.CameraOnline
	}
	cam.UpdatedAt = time.Now()
	s.applyCamera(cam)

	payload := domain.RecordingPayload{CameraID: cameraID, ShouldRecord: shouldRecord}
	return s.deliverCamera(ctx, domain.MutationCameraRecording, cameraID, payload, func(ctx context.Context) (domain.Camera, error) {
		return s.client.ToggleRecording(ctx, cameraID, shouldRecord)
	})
}

// UpdateCameraSettings pushes a partial settings change to a camera.
func (s *Syncer) UpdateCameraSettings(ctx context.Context, cameraID string, patch domain.CameraSettingsPatch) error {
	cam, ok := s.cache.Camera(cameraID)
	if !ok {
		return ErrUnknownCamera
	}

	cam.Settings = patch.Apply(cam.Settings)
	cam.UpdatedAt = time.Now()
	s.applyCamera(cam)

	payload := domain.SettingsPayload{CameraID: cameraID, Settings: patch}
	return s.deliverCamera(ctx, domain.MutationCameraSettings, cameraID, payload, func(ctx context.Context) (domain.Camera, error) {
		return s.client.UpdateCameraSettings(ctx, cameraID, patch)
	})
}

// UpdateTask applies a partial update to a task.
func (s *Syncer) UpdateTask(ctx context.Context, taskID string, patch domain.TaskPatch) error {
	task, ok := s.cache.Task(taskID)
	if !ok {
		return ErrUnknownTask
	}

	task = patch.Apply(task)
	task.UpdatedAt = time.Now()
	s.applyTask(task)

	if !s.monitor.IsOnline() {
		return s.queue.Enqueue(domain.MutationTaskUpdate, domain.TaskUpdatePayload{TaskID: taskID, Changes: patch})
	}

	updated, err := s.client.UpdateTask(ctx, taskID, patch)
	if err == nil {
		s.applyTask(updated)
		return nil
	}
	if api.IsRetryable(err) {
		s.logger.Warn("Task update queued after transient failure",
			log.String("task_id", taskID), log.Error(err))
		return s.queue.Enqueue(domain.MutationTaskUpdate, domain.TaskUpdatePayload{TaskID: taskID, Changes: patch})
	}

	s.revertTask(ctx, taskID)
	s.record(domain.LogError, "Task update rejected: "+err.Error())
	return err
}

// deliverCamera runs the online/offline decision shared by the camera
// commands. call performs the HTTP round trip and returns the server's
// authoritative snapshot.
func (s *Syncer) deliverCamera(
	ctx context.Context,
	mutationType domain.MutationType,
	cameraID string,
	payload any,
	call func(ctx context.Context) (domain.Camera, error),
) error {
	if !s.monitor.IsOnline() {
		return s.queue.Enqueue(mutationType, payload)
	}

	updated, err := call(ctx)
	if err == nil {
		s.applyCamera(updated)
		return nil
	}
	if api.IsRetryable(err) {
		s.logger.Warn("Camera command queued after transient failure",
			log.String("camera_id", cameraID),
			log.String("type", string(mutationType)),
			log.Error(err))
		return s.queue.Enqueue(mutationType, payload)
	}

	// Rejected outright: the optimistic snapshot is wrong, put the
	// server's truth back.
	s.revertCamera(ctx, cameraID)
	s.record(domain.LogError, "Camera command rejected: "+err.Error())
	return err
}

// execute replays one queued mutation. A nil return removes the entry:
// success, a permanent rejection (replaying would never succeed, the
// entity gets refetched instead), or an undecodable payload.
func (s *Syncer) execute(ctx context.Context, m domain.PendingMutation) error {
	var (
		cam  domain.Camera
		task domain.Task
		err  error
	)

	switch m.Type {
	case domain.MutationCameraFavorite:
		var p domain.FavoritePayload
		if err = json.Unmarshal(m.Payload, &p); err != nil {
			s.dropMalformed(m, err)
			return nil
		}
		cam, err = s.client.ToggleFavorite(ctx, p.CameraID, p.Target)
		if err == nil {
			s.applyCamera(cam)
			return nil
		}
		return s.settle(ctx, m, p.CameraID, "", err)

	case domain.MutationCameraRecording:
		var p domain.RecordingPayload
		if err = json.Unmarshal(m.Payload, &p); err != nil {
			s.dropMalformed(m, err)
			return nil
		}
		cam, err = s.client.ToggleRecording(ctx, p.CameraID, p.ShouldRecord)
		if err == nil {
			s.applyCamera(cam)
			return nil
		}
		return s.settle(ctx, m, p.CameraID, "", err)

	case domain.MutationCameraSettings:
		var p domain.SettingsPayload
		if err = json.Unmarshal(m.Payload, &p); err != nil {
			s.dropMalformed(m, err)
			return nil
		}
		cam, err = s.client.UpdateCameraSettings(ctx, p.CameraID, p.Settings)
		if err == nil {
			s.applyCamera(cam)
			return nil
		}
		return s.settle(ctx, m, p.CameraID, "", err)

	case domain.MutationTaskUpdate:
		var p domain.TaskUpdatePayload
		if err = json.Unmarshal(m.Payload, &p); err != nil {
			s.dropMalformed(m, err)
			return nil
		}
		task, err = s.client.UpdateTask(ctx, p.TaskID, p.Changes)
		if err == nil {
			s.applyTask(task)
			return nil
		}
		return s.settle(ctx, m, "", p.TaskID, err)

	default:
		s.logger.Warn("Removing mutation of unknown type",
			log.String("mutation_id", m.ID),
			log.String("type", string(m.Type)))
		return nil
	}
}

// settle classifies a replay failure: retryable errors keep the entry
// queued, permanent rejections remove it and refetch the entity so the
// cache stops showing a write the server refused.
func (s *Syncer) settle(ctx context.Context, m domain.PendingMutation, cameraID, taskID string, err error) error {
	if api.IsRetryable(err) {
		return err
	}

	s.logger.Warn("Dropping permanently rejected mutation",
		log.String("mutation_id", m.ID),
		log.String("type", string(m.Type)),
		log.Error(err))
	s.record(domain.LogError, "Queued change rejected: "+err.Error())

	if cameraID != "" {
		s.revertCamera(ctx, cameraID)
	}
	if taskID != "" {
		s.revertTask(ctx, taskID)
	}
	return nil
}

func (s *Syncer) dropMalformed(m domain.PendingMutation, err error) {
	s.logger.Warn("Removing undecodable mutation",
		log.String("mutation_id", m.ID),
		log.String("type", string(m.Type)),
		log.Error(err))
}

// revertCamera replaces an optimistic snapshot with the server's truth
// after a rejected write.
func (s *Syncer) revertCamera(ctx context.Context, cameraID string) {
	cam, err := s.client.Camera(ctx, cameraID)
	if err != nil {
		s.logger.Warn("Could not refetch camera after rejection",
			log.String("camera_id", cameraID), log.Error(err))
		return
	}
	s.applyCamera(cam)
}

func (s *Syncer) revertTask(ctx context.Context, taskID string) {
	tasks, err := s.client.Tasks(ctx)
	if err != nil {
		s.logger.Warn("Could not refetch tasks after rejection",
			log.String("task_id", taskID), log.Error(err))
		return
	}
	for _, t := range tasks {
		if t.ID == taskID {
			s.applyTask(t)
			return
		}
	}
	s.cache.RemoveTask(taskID)
}
