package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reelsmith-server/models"
)

// syncBatchSize bounds how many sync-poll provider calls run at once
// during a full production run. Each batch is awaited in full before the
// next begins.
const syncBatchSize = 3

// DispatcherStore is the slice of the task store the dispatcher needs.
type DispatcherStore interface {
	ListScenes(projectID string) ([]models.Scene, error)
	ListVideoAssets(projectID string) ([]models.VideoAsset, error)
	CreateVideoAsset(projectID, sceneID, url string, duration float64) error
	CreateTask(t *models.GenerationTask) error
}

// SyncProvider is the synchronous-poll provider shape.
type SyncProvider interface {
	Submit(ctx context.Context, req GenerationRequest) (*Operation, error)
	Poll(ctx context.Context, op *Operation) (*PollResult, error)
	Download(ctx context.Context, resultURL string) ([]byte, error)
}

// AsyncStarter is the async-task provider's submit endpoint.
type AsyncStarter interface {
	Start(ctx context.Context, req GenerationRequest) (string, error)
}

// Uploader hands result bytes to the storage collaborator.
type Uploader interface {
	UploadBytes(ctx context.Context, data []byte, objectName string) (string, error)
}

// TaskTracker registers a created task with the poller.
type TaskTracker interface {
	Track(task models.GenerationTask)
}

// ProductionReport summarizes one full production run.
type ProductionReport struct {
	Requested int           `json:"requested"`
	Generated int           `json:"generated"`
	Submitted int           `json:"submitted"`
	Errors    []*SceneError `json:"errors,omitempty"`
}

// Dispatcher generates whatever scenes still lack a completed video,
// using the provider shape the project's model calls for.
type Dispatcher struct {
	store       DispatcherStore
	syncClient  SyncProvider
	asyncClient AsyncStarter
	storage     Uploader
	tracker     TaskTracker
	pollDelay   time.Duration
	pollTimeout time.Duration
	log         *zap.Logger
}

func NewDispatcher(store DispatcherStore, syncClient SyncProvider, asyncClient AsyncStarter, storage Uploader, tracker TaskTracker, pollDelay, pollTimeout time.Duration, log *zap.Logger) *Dispatcher {
	if pollDelay <= 0 {
		pollDelay = 5 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Minute
	}
	return &Dispatcher{
		store:       store,
		syncClient:  syncClient,
		asyncClient: asyncClient,
		storage:     storage,
		tracker:     tracker,
		pollDelay:   pollDelay,
		pollTimeout: pollTimeout,
		log:         log,
	}
}

// ProduceMissing generates every scene of the project that has no
// completed video yet. A scene that failed on a previous run simply has
// no asset, so it is picked up again here.
func (d *Dispatcher) ProduceMissing(ctx context.Context, project *models.Project) (*ProductionReport, error) {
	scenes, err := d.store.ListScenes(project.ID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	assets, err := d.store.ListVideoAssets(project.ID)
	if err != nil {
		return nil, fmt.Errorf("list video assets: %w", err)
	}
	done := make(map[string]bool, len(assets))
	for _, a := range assets {
		done[a.SceneId] = true
	}

	var missing []models.Scene
	for _, s := range scenes {
		if !done[s.ID] {
			missing = append(missing, s)
		}
	}
	report := &ProductionReport{Requested: len(missing)}
	if len(missing) == 0 {
		return report, nil
	}

	d.log.Info("production run",
		zap.String("project_id", project.ID),
		zap.String("model", project.Model),
		zap.Int("missing", len(missing)))

	if project.Model == models.ModelEpic {
		d.produceAsync(ctx, project, missing, report)
	} else {
		d.produceSyncBatched(ctx, project, missing, report)
	}
	return report, nil
}

// produceSyncBatched runs the sync-poll path in fixed-size batches. The
// whole batch is awaited before the next starts, bounding simultaneous
// provider load. One scene's failure never aborts its siblings.
func (d *Dispatcher) produceSyncBatched(ctx context.Context, project *models.Project, missing []models.Scene, report *ProductionReport) {
	var mu sync.Mutex
	for start := 0; start < len(missing); start += syncBatchSize {
		end := start + syncBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		var wg sync.WaitGroup
		for _, scene := range missing[start:end] {
			wg.Add(1)
			go func(scene models.Scene) {
				defer wg.Done()
				if err := d.generateSceneSync(ctx, project, scene); err != nil {
					d.log.Warn("scene generation failed",
						zap.String("scene_id", scene.ID),
						zap.Int("seq", scene.Seq),
						zap.Error(err))
					mu.Lock()
					report.Errors = append(report.Errors, &SceneError{SceneID: scene.ID, Seq: scene.Seq, Err: err})
					mu.Unlock()
					return
				}
				mu.Lock()
				report.Generated++
				mu.Unlock()
			}(scene)
		}
		wg.Wait()
	}
}

// generateSceneSync drives one sync-poll job to completion: submit, poll
// on a fixed delay until done, download, persist, materialize the asset.
func (d *Dispatcher) generateSceneSync(ctx context.Context, project *models.Project, scene models.Scene) error {
	op, err := d.syncClient.Submit(ctx, GenerationRequest{
		ProjectID:   project.ID,
		SceneID:     scene.ID,
		Kind:        "video",
		Prompt:      scene.Prompt,
		Model:       scene.Model,
		AspectRatio: project.AspectRatio,
		Seconds:     models.SceneSeconds(scene.Model),
	})
	if err != nil {
		return err
	}

	deadline := time.After(d.pollTimeout)
	ticker := time.NewTicker(d.pollDelay)
	defer ticker.Stop()

	var result *PollResult
poll:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return &TimeoutError{Op: "scene generation", After: d.pollTimeout}
		case <-ticker.C:
			res, err := d.syncClient.Poll(ctx, op)
			if err != nil {
				var netErr *NetworkError
				if errors.As(err, &netErr) {
					// Transient transport failure, keep polling.
					continue
				}
				return err
			}
			if !res.Done {
				continue
			}
			if res.Filtered {
				return &ContentFilterError{Reason: res.Error}
			}
			if res.Error != "" {
				return &ProviderError{StatusCode: 0, Message: res.Error}
			}
			result = res
			break poll
		}
	}

	data, err := d.syncClient.Download(ctx, result.ResultURL)
	if err != nil {
		return err
	}
	objectName := fmt.Sprintf("scenes/%s/video.mp4", scene.ID)
	publicURL, err := d.storage.UploadBytes(ctx, data, objectName)
	if err != nil {
		return fmt.Errorf("store scene video: %w", err)
	}

	duration := result.Duration
	if duration == 0 {
		duration = float64(models.SceneSeconds(scene.Model))
	}
	if err := d.store.CreateVideoAsset(project.ID, scene.ID, publicURL, duration); err != nil {
		return fmt.Errorf("create video asset: %w", err)
	}
	return nil
}

// produceAsync submits one fire-and-forget job per scene. No batching:
// nothing holds a connection open, completion is the poller's job.
func (d *Dispatcher) produceAsync(ctx context.Context, project *models.Project, missing []models.Scene, report *ProductionReport) {
	for _, scene := range missing {
		externalID, err := d.asyncClient.Start(ctx, GenerationRequest{
			ProjectID:   project.ID,
			SceneID:     scene.ID,
			Kind:        "video",
			Prompt:      scene.Prompt,
			Model:       scene.Model,
			AspectRatio: project.AspectRatio,
			Seconds:     models.SceneSeconds(scene.Model),
		})
		if err != nil {
			d.log.Warn("async submission failed",
				zap.String("scene_id", scene.ID),
				zap.Error(err))
			report.Errors = append(report.Errors, &SceneError{SceneID: scene.ID, Seq: scene.Seq, Err: err})
			continue
		}
		task := models.GenerationTask{
			ID:             uuid.NewString(),
			ProjectId:      project.ID,
			SceneId:        scene.ID,
			Type:           models.TaskTypeVideoAsync,
			ExternalTaskId: externalID,
			Status:         models.TaskStatusPending,
		}
		if err := d.store.CreateTask(&task); err != nil {
			report.Errors = append(report.Errors, &SceneError{SceneID: scene.ID, Seq: scene.Seq, Err: err})
			continue
		}
		d.tracker.Track(task)
		report.Submitted++
	}
}

// ProduceMusic submits a background-music job for the project and
// creates its tracking task.
func (d *Dispatcher) ProduceMusic(ctx context.Context, project *models.Project) (string, error) {
	externalID, err := d.asyncClient.Start(ctx, GenerationRequest{
		ProjectID: project.ID,
		Kind:      "music",
		Prompt:    project.Prompt,
		Model:     project.Model,
	})
	if err != nil {
		return "", err
	}
	task := models.GenerationTask{
		ID:             uuid.NewString(),
		ProjectId:      project.ID,
		Type:           models.TaskTypeMusicAsync,
		ExternalTaskId: externalID,
		Status:         models.TaskStatusPending,
	}
	if err := d.store.CreateTask(&task); err != nil {
		return "", fmt.Errorf("create music task: %w", err)
	}
	d.tracker.Track(task)
	return task.ID, nil
}
