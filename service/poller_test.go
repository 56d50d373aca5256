package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reelsmith-server/models"
)

type statusWrite struct {
	id     string
	status string
}

type fakePollerStore struct {
	mu          sync.Mutex
	writes      []statusWrite
	videoAssets []string
	audioAssets []string
	pending     []models.GenerationTask
}

func (s *fakePollerStore) UpdateTaskStatus(id, status, resultURL, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, statusWrite{id: id, status: status})
	return nil
}

func (s *fakePollerStore) CreateVideoAsset(projectID, sceneID, url string, duration float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoAssets = append(s.videoAssets, sceneID)
	return nil
}

func (s *fakePollerStore) CreateAudioAsset(projectID, kind, url string, duration float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioAssets = append(s.audioAssets, kind)
	return nil
}

func (s *fakePollerStore) ListPendingTasks(projectID string) ([]models.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, nil
}

func (s *fakePollerStore) statusesFor(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, w := range s.writes {
		if w.id == id {
			out = append(out, w.status)
		}
	}
	return out
}

type fakeChecker struct {
	mu      sync.Mutex
	results []*StatusResult
	err     error
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (c *fakeChecker) Status(ctx context.Context, externalTaskID string) (*StatusResult, error) {
	c.mu.Lock()
	c.calls++
	var res *StatusResult
	if len(c.results) > 0 {
		res = c.results[0]
		if len(c.results) > 1 {
			c.results = c.results[1:]
		}
	}
	err := c.err
	c.mu.Unlock()

	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.release != nil {
		<-c.release
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func newTestPoller(store *fakePollerStore, checker *fakeChecker) *Poller {
	return NewPoller(store, checker, time.Hour, zap.NewNop())
}

func videoTask(status string) models.GenerationTask {
	return models.GenerationTask{
		ID:             "task-1",
		ProjectId:      "proj-1",
		SceneId:        "scene-1",
		Type:           models.TaskTypeVideoAsync,
		ExternalTaskId: "ext-1",
		Status:         status,
	}
}

// insertHandle registers a handle without starting its timer goroutine
// so ticks can be driven by hand.
func insertHandle(p *Poller, task models.GenerationTask) *pollHandle {
	_, cancel := context.WithCancel(context.Background())
	h := &pollHandle{task: task, cancel: cancel}
	h.promoted = task.Status == models.TaskStatusProcessing
	p.mu.Lock()
	p.handles[task.ExternalTaskId] = h
	p.mu.Unlock()
	return h
}

func TestTickSkipsWhileRequestInFlight(t *testing.T) {
	store := &fakePollerStore{}
	checker := &fakeChecker{
		results: []*StatusResult{{Status: ProviderStatusProcessing}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	p := newTestPoller(store, checker)
	h := insertHandle(p, videoTask(models.TaskStatusProcessing))

	done := make(chan bool)
	go func() {
		done <- p.tick(context.Background(), h)
	}()
	<-checker.entered

	// The first request is still open; an overlapping tick must be a
	// pure no-op.
	assert.False(t, p.tick(context.Background(), h))
	checker.mu.Lock()
	assert.Equal(t, 1, checker.calls)
	checker.mu.Unlock()

	close(checker.release)
	assert.False(t, <-done)
}

func TestTickCompletedWritesStatusThenAsset(t *testing.T) {
	store := &fakePollerStore{}
	checker := &fakeChecker{results: []*StatusResult{{
		Status:    ProviderStatusCompleted,
		ResultURL: "https://cdn.example.com/r.mp4",
		Duration:  8,
	}}}
	p := newTestPoller(store, checker)
	h := insertHandle(p, videoTask(models.TaskStatusProcessing))

	require.True(t, p.tick(context.Background(), h))

	require.Equal(t, []string{models.TaskStatusCompleted}, store.statusesFor("task-1"))
	assert.Equal(t, []string{"scene-1"}, store.videoAssets)
	assert.False(t, p.Tracked("ext-1"), "terminal task keeps no timer")
}

func TestTickCompletedMusicMaterializesAudio(t *testing.T) {
	store := &fakePollerStore{}
	checker := &fakeChecker{results: []*StatusResult{{
		Status:    ProviderStatusCompleted,
		ResultURL: "https://cdn.example.com/m.mp3",
	}}}
	p := newTestPoller(store, checker)
	task := videoTask(models.TaskStatusProcessing)
	task.Type = models.TaskTypeMusicAsync
	task.SceneId = ""
	h := insertHandle(p, task)

	require.True(t, p.tick(context.Background(), h))
	assert.Equal(t, []string{models.AudioKindMusic}, store.audioAssets)
	assert.Empty(t, store.videoAssets)
}

func TestTickFailedCreatesNoAsset(t *testing.T) {
	store := &fakePollerStore{}
	checker := &fakeChecker{results: []*StatusResult{{
		Status: ProviderStatusFailed,
		Error:  "gpu pool exhausted",
	}}}
	p := newTestPoller(store, checker)
	h := insertHandle(p, videoTask(models.TaskStatusProcessing))

	require.True(t, p.tick(context.Background(), h))
	assert.Equal(t, []string{models.TaskStatusFailed}, store.statusesFor("task-1"))
	assert.Empty(t, store.videoAssets)
	assert.Empty(t, store.audioAssets)
	assert.False(t, p.Tracked("ext-1"))
}

func TestTickPromotesToProcessingOnce(t *testing.T) {
	store := &fakePollerStore{}
	checker := &fakeChecker{results: []*StatusResult{{Status: ProviderStatusProcessing}}}
	p := newTestPoller(store, checker)
	h := insertHandle(p, videoTask(models.TaskStatusPending))

	assert.False(t, p.tick(context.Background(), h))
	assert.False(t, p.tick(context.Background(), h))
	assert.False(t, p.tick(context.Background(), h))

	assert.Equal(t, []string{models.TaskStatusProcessing}, store.statusesFor("task-1"))
}

func TestTickTransportErrorLeavesTaskUntouched(t *testing.T) {
	store := &fakePollerStore{}
	checker := &fakeChecker{err: &NetworkError{Op: "status check", Err: errors.New("connection reset")}}
	p := newTestPoller(store, checker)
	h := insertHandle(p, videoTask(models.TaskStatusProcessing))

	assert.False(t, p.tick(context.Background(), h))
	assert.Empty(t, store.writes)
	assert.True(t, p.Tracked("ext-1"), "transient failures keep the timer alive")
}

func TestTrackIgnoresTerminalAndDuplicate(t *testing.T) {
	store := &fakePollerStore{}
	checker := &fakeChecker{results: []*StatusResult{{Status: ProviderStatusProcessing}}}
	p := newTestPoller(store, checker)
	defer p.StopAll()

	done := videoTask(models.TaskStatusCompleted)
	p.Track(done)
	assert.False(t, p.Tracked("ext-1"))

	p.Track(models.GenerationTask{ID: "task-2", Status: models.TaskStatusPending})
	assert.False(t, p.Tracked(""))

	active := videoTask(models.TaskStatusProcessing)
	p.Track(active)
	assert.True(t, p.Tracked("ext-1"))
	p.Track(active)
	assert.True(t, p.Tracked("ext-1"))
}

func TestResumeTracksPendingTasks(t *testing.T) {
	store := &fakePollerStore{pending: []models.GenerationTask{
		{ID: "a", ExternalTaskId: "ext-a", Status: models.TaskStatusPending, Type: models.TaskTypeVideoAsync},
		{ID: "b", ExternalTaskId: "ext-b", Status: models.TaskStatusProcessing, Type: models.TaskTypeMusicAsync},
	}}
	checker := &fakeChecker{results: []*StatusResult{{Status: ProviderStatusProcessing}}}
	p := newTestPoller(store, checker)
	defer p.StopAll()

	require.NoError(t, p.Resume(""))
	assert.True(t, p.Tracked("ext-a"))
	assert.True(t, p.Tracked("ext-b"))
}

func TestStopAllClearsTimers(t *testing.T) {
	store := &fakePollerStore{}
	checker := &fakeChecker{results: []*StatusResult{{Status: ProviderStatusProcessing}}}
	p := newTestPoller(store, checker)

	p.Track(videoTask(models.TaskStatusProcessing))
	require.True(t, p.Tracked("ext-1"))
	p.StopAll()
	assert.False(t, p.Tracked("ext-1"))
}
