package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"reelsmith-server/models"
)

// PollerStore is the slice of the task store the poller needs.
type PollerStore interface {
	UpdateTaskStatus(id, status, resultURL, errMsg string) error
	CreateVideoAsset(projectID, sceneID, url string, duration float64) error
	CreateAudioAsset(projectID, kind, url string, duration float64) error
	ListPendingTasks(projectID string) ([]models.GenerationTask, error)
}

// StatusChecker is the async provider's status endpoint.
type StatusChecker interface {
	Status(ctx context.Context, externalTaskID string) (*StatusResult, error)
}

// Poller reconciles externally-tracked generation tasks. It owns one
// cancellable timer per external task id and guarantees at most one
// outstanding status request per id at any instant.
type Poller struct {
	store    PollerStore
	checker  StatusChecker
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	handles map[string]*pollHandle
}

type pollHandle struct {
	task     models.GenerationTask
	cancel   context.CancelFunc
	inFlight atomic.Bool
	// promoted records that the Pending -> Processing write already
	// happened, so it is issued at most once.
	promoted bool
}

func NewPoller(store PollerStore, checker StatusChecker, interval time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		store:    store,
		checker:  checker,
		interval: interval,
		log:      log,
		handles:  make(map[string]*pollHandle),
	}
}

// Track starts recurring status checks for a task. Tracking the same
// external task id twice is a no-op.
func (p *Poller) Track(task models.GenerationTask) {
	if task.ExternalTaskId == "" || task.Terminal() {
		return
	}
	p.mu.Lock()
	if _, ok := p.handles[task.ExternalTaskId]; ok {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &pollHandle{task: task, cancel: cancel}
	h.promoted = task.Status == models.TaskStatusProcessing
	p.handles[task.ExternalTaskId] = h
	p.mu.Unlock()

	p.log.Info("tracking task",
		zap.String("task_id", task.ID),
		zap.String("external_task_id", task.ExternalTaskId),
		zap.String("type", task.Type))
	go p.run(ctx, h)
}

// Tracked reports whether an external task id currently has a timer.
func (p *Poller) Tracked(externalTaskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handles[externalTaskID]
	return ok
}

// Stop cancels the timer for one external task id.
func (p *Poller) Stop(externalTaskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.handles[externalTaskID]; ok {
		h.cancel()
		delete(p.handles, externalTaskID)
	}
}

// StopAll tears down every outstanding timer.
func (p *Poller) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, h := range p.handles {
		h.cancel()
		delete(p.handles, id)
	}
}

// Resume loads every Pending/Processing task from the store and tracks
// any that are not already being polled. Called at startup and from the
// periodic sweep.
func (p *Poller) Resume(projectID string) error {
	tasks, err := p.store.ListPendingTasks(projectID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		p.Track(t)
	}
	return nil
}

// run issues one immediate check and then one per tick until the task is
// terminal or the handle is cancelled.
func (p *Poller) run(ctx context.Context, h *pollHandle) {
	if p.tick(ctx, h) {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.tick(ctx, h) {
				return
			}
		}
	}
}

// tick runs at most one status request. A tick that lands while the
// previous request is still unresolved is skipped. Returns true when the
// task reached a terminal state and the handle was stopped.
func (p *Poller) tick(ctx context.Context, h *pollHandle) bool {
	if !h.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer h.inFlight.Store(false)

	res, err := p.checker.Status(ctx, h.task.ExternalTaskId)
	if err != nil {
		// Transport or parse failure: leave the task as-is, the next
		// tick retries.
		p.log.Warn("status check failed",
			zap.String("external_task_id", h.task.ExternalTaskId),
			zap.Error(err))
		return false
	}

	switch res.Status {
	case ProviderStatusCompleted:
		p.reconcileCompleted(h, res)
		p.Stop(h.task.ExternalTaskId)
		return true
	case ProviderStatusFailed:
		if err := p.store.UpdateTaskStatus(h.task.ID, models.TaskStatusFailed, "", res.Error); err != nil {
			p.log.Error("mark task failed", zap.String("task_id", h.task.ID), zap.Error(err))
		}
		p.log.Info("task failed",
			zap.String("task_id", h.task.ID),
			zap.String("reason", res.Error))
		p.Stop(h.task.ExternalTaskId)
		return true
	default:
		if !h.promoted {
			if err := p.store.UpdateTaskStatus(h.task.ID, models.TaskStatusProcessing, "", ""); err != nil {
				p.log.Warn("promote task to processing", zap.String("task_id", h.task.ID), zap.Error(err))
			} else {
				h.promoted = true
			}
		}
		return false
	}
}

// reconcileCompleted writes the terminal status and then materializes the
// downstream asset. These are two independent writes; if the process dies
// between them the task can read Completed without an asset, which the
// sweep tolerates by re-checking on the next load.
func (p *Poller) reconcileCompleted(h *pollHandle, res *StatusResult) {
	if err := p.store.UpdateTaskStatus(h.task.ID, models.TaskStatusCompleted, res.ResultURL, ""); err != nil {
		p.log.Error("mark task completed", zap.String("task_id", h.task.ID), zap.Error(err))
		return
	}

	var err error
	switch h.task.Type {
	case models.TaskTypeVideoAsync:
		err = p.store.CreateVideoAsset(h.task.ProjectId, h.task.SceneId, res.ResultURL, res.Duration)
	case models.TaskTypeMusicAsync:
		err = p.store.CreateAudioAsset(h.task.ProjectId, models.AudioKindMusic, res.ResultURL, res.Duration)
	default:
		p.log.Error("unknown task type", zap.String("type", h.task.Type))
		return
	}
	if err != nil {
		p.log.Error("materialize asset",
			zap.String("task_id", h.task.ID),
			zap.Error(err))
		return
	}
	p.log.Info("task completed",
		zap.String("task_id", h.task.ID),
		zap.String("result_url", res.ResultURL))
}
