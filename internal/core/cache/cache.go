// Package cache holds the in-memory entity set the UI renders from. It is
// written exclusively by the sync orchestrator; every other component
// reaches it through orchestrator events. Merge semantics are
// last-writer-wins keyed on entity id, with the orchestrator responsible
// for sequencing writes.
package cache

import (
	"sort"
	"sync"

	"github.com/kamrah/camsync/internal/core/domain"
	"github.com/kamrah/camsync/pkg/sequence"
)

// LogCapacity bounds the activity feed ring.
const LogCapacity = 100

type Cache struct {
	mu      sync.RWMutex
	cameras map[string]domain.Camera
	tasks   map[string]domain.Task
	logs    *sequence.Ring[domain.LogEntry]
}

func New() *Cache {
	return &Cache{
		cameras: make(map[string]domain.Camera),
		tasks:   make(map[string]domain.Task),
		logs:    sequence.NewRing[domain.LogEntry](LogCapacity),
	}
}

// UpsertCamera inserts or overwrites by id. Last write wins; applying the
// same snapshot twice is a no-op.
func (c *Cache) UpsertCamera(cam domain.Camera) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cameras[cam.ID] = cam
}

// RemoveCamera deletes by id. Removing an absent id is a no-op.
func (c *Cache) RemoveCamera(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cameras, id)
}

func (c *Cache) Camera(id string) (domain.Camera, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cam, ok := c.cameras[id]
	return cam, ok
}

// Cameras returns a point-in-time snapshot ordered by id. The slice is
// detached from the cache; later writes do not show through.
func (c *Cache) Cameras() []domain.Camera {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Camera, 0, len(c.cameras))
	for _, cam := range c.cameras {
		out = append(out, cam)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Cache) UpsertTask(task domain.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[task.ID] = task
}

func (c *Cache) RemoveTask(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, id)
}

func (c *Cache) Task(id string) (domain.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	task, ok := c.tasks[id]
	return task, ok
}

func (c *Cache) Tasks() []domain.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Task, 0, len(c.tasks))
	for _, task := range c.tasks {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReplaceCameras swaps the full camera set, used after a full refresh so
// entities deleted server-side while the client was away disappear too.
func (c *Cache) ReplaceCameras(cameras []domain.Camera) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cameras = make(map[string]domain.Camera, len(cameras))
	for _, cam := range cameras {
		c.cameras[cam.ID] = cam
	}
}

func (c *Cache) ReplaceTasks(tasks []domain.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = make(map[string]domain.Task, len(tasks))
	for _, task := range tasks {
		c.tasks[task.ID] = task
	}
}

// AppendLog pushes an entry onto the capped activity feed.
func (c *Cache) AppendLog(entry domain.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs.Push(entry)
}

// Logs returns the retained entries, newest first.
func (c *Cache) Logs() []domain.LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logs.Snapshot()
}
