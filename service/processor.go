package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"reelsmith-server/compositor"
	"reelsmith-server/config"
	"reelsmith-server/models"
)

// ProcessorStore is the persistence surface the background handlers use.
type ProcessorStore interface {
	GetProject(id string) (*models.Project, error)
	UpdateProjectStatus(id, status string) error
	SetProjectVideo(id, url string) error
	ListScenes(projectID string) ([]models.Scene, error)
	ListVideoAssets(projectID string) ([]models.VideoAsset, error)
	ListPendingTasks(projectID string) ([]models.GenerationTask, error)
	CurrentAudio(projectID, kind string) (*models.AudioAsset, error)
}

// Producer runs scene and music generation for a project.
type Producer interface {
	ProduceMissing(ctx context.Context, project *models.Project) (*ProductionReport, error)
	ProduceMusic(ctx context.Context, project *models.Project) (string, error)
}

// Composer renders a project's approved assets into the final movie.
type Composer interface {
	Compose(ctx context.Context, req compositor.Request) (*compositor.Artifact, error)
}

// Processor owns the asynq server and the handlers behind the two
// background job types: a production run and a composition run.
type Processor struct {
	store      ProcessorStore
	dispatcher Producer
	composer   Composer
	storage    Uploader
	server     *asynq.Server
	log        *zap.Logger
}

func NewProcessor(cfg *config.Config, store ProcessorStore, dispatcher Producer, composer Composer, storage Uploader, log *zap.Logger) *Processor {
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		},
		asynq.Config{
			Concurrency: 4,
		},
	)
	return &Processor{
		store:      store,
		dispatcher: dispatcher,
		composer:   composer,
		storage:    storage,
		server:     server,
		log:        log,
	}
}

// Start registers the handlers and runs the asynq server in the
// background.
func (p *Processor) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeProductionRun, p.HandleProductionRun)
	mux.HandleFunc(TypeCompositionRun, p.HandleCompositionRun)
	return p.server.Start(mux)
}

func (p *Processor) Shutdown() {
	p.server.Shutdown()
}

// HandleProductionRun generates every scene clip the project is still
// missing, and kicks off music generation when the project has no
// soundtrack yet.
func (p *Processor) HandleProductionRun(ctx context.Context, t *asynq.Task) error {
	var payload ProductionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode production payload: %v: %w", err, asynq.SkipRetry)
	}
	log := p.log.With(zap.String("project_id", payload.ProjectID))

	project, err := p.store.GetProject(payload.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if project.Status == models.ProjectStatusStoryboard {
		if err := p.store.UpdateProjectStatus(project.ID, models.ProjectStatusProduction); err != nil {
			return fmt.Errorf("move project to production: %w", err)
		}
		project.Status = models.ProjectStatusProduction
	}

	report, err := p.dispatcher.ProduceMissing(ctx, project)
	if err != nil {
		return fmt.Errorf("produce scenes: %w", err)
	}
	log.Info("production run finished",
		zap.Int("requested", report.Requested),
		zap.Int("generated", report.Generated),
		zap.Int("submitted", report.Submitted),
		zap.Int("failed", len(report.Errors)))
	for _, sceneErr := range report.Errors {
		log.Warn("scene generation failed",
			zap.String("scene_id", sceneErr.SceneID),
			zap.Int("seq", sceneErr.Seq),
			zap.Error(sceneErr))
	}

	if err := p.maybeProduceMusic(ctx, project, log); err != nil {
		// Music is an enhancement, not a gate. The run already produced
		// its scenes.
		log.Warn("music generation not started", zap.Error(err))
	}
	return nil
}

// maybeProduceMusic submits a music job unless the project already has
// a track or one is still in flight.
func (p *Processor) maybeProduceMusic(ctx context.Context, project *models.Project, log *zap.Logger) error {
	current, err := p.store.CurrentAudio(project.ID, models.AudioKindMusic)
	if err != nil {
		return fmt.Errorf("check current music: %w", err)
	}
	if current != nil {
		return nil
	}
	pending, err := p.store.ListPendingTasks(project.ID)
	if err != nil {
		return fmt.Errorf("check pending tasks: %w", err)
	}
	for _, task := range pending {
		if task.Type == models.TaskTypeMusicAsync {
			return nil
		}
	}
	taskID, err := p.dispatcher.ProduceMusic(ctx, project)
	if err != nil {
		return err
	}
	log.Info("music generation submitted", zap.String("task_id", taskID))
	return nil
}

// HandleCompositionRun renders the project's scene clips and audio
// tracks into the final movie, uploads it, and completes the project.
func (p *Processor) HandleCompositionRun(ctx context.Context, t *asynq.Task) error {
	var payload CompositionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode composition payload: %v: %w", err, asynq.SkipRetry)
	}
	log := p.log.With(zap.String("project_id", payload.ProjectID))

	project, err := p.store.GetProject(payload.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	req, err := p.buildRequest(project)
	if err != nil {
		return err
	}
	started := time.Now()
	req.OnProgress = func(prog compositor.Progress) {
		log.Debug("composition progress",
			zap.String("phase", string(prog.Phase)),
			zap.Float64("percent", prog.Percent),
			zap.String("message", prog.Message))
	}

	artifact, err := p.composer.Compose(ctx, *req)
	if err != nil {
		return fmt.Errorf("compose project: %w", err)
	}

	objectName := fmt.Sprintf("projects/%s/movie.mp4", project.ID)
	url, err := p.storage.UploadBytes(ctx, artifact.Data, objectName)
	if err != nil {
		return fmt.Errorf("upload movie: %w", err)
	}
	if err := p.store.SetProjectVideo(project.ID, url); err != nil {
		return fmt.Errorf("record movie url: %w", err)
	}
	if err := p.store.UpdateProjectStatus(project.ID, models.ProjectStatusCompleted); err != nil {
		return fmt.Errorf("complete project: %w", err)
	}
	log.Info("composition run finished",
		zap.String("url", url),
		zap.Duration("movie_duration", artifact.Duration),
		zap.Duration("took", time.Since(started)))
	return nil
}

// buildRequest gathers everything a composition run needs from the
// store: the scene list in order, the clip URL per scene, and the
// current voiceover and music tracks.
func (p *Processor) buildRequest(project *models.Project) (*compositor.Request, error) {
	scenes, err := p.store.ListScenes(project.ID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("project %s has no scenes: %w", project.ID, asynq.SkipRetry)
	}
	assets, err := p.store.ListVideoAssets(project.ID)
	if err != nil {
		return nil, fmt.Errorf("list video assets: %w", err)
	}

	refs := make([]compositor.SceneRef, 0, len(scenes))
	for _, scene := range scenes {
		refs = append(refs, compositor.SceneRef{ID: scene.ID, Seq: scene.Seq})
	}
	urls := make(map[string]string, len(assets))
	for _, asset := range assets {
		urls[asset.SceneId] = asset.Url
	}

	req := &compositor.Request{
		Scenes:        refs,
		SceneDuration: time.Duration(models.SceneSeconds(project.Model)) * time.Second,
		VideoURLs:     urls,
		AspectRatio:   project.AspectRatio,
	}
	if voice, err := p.store.CurrentAudio(project.ID, models.AudioKindVoiceover); err != nil {
		return nil, fmt.Errorf("load voiceover: %w", err)
	} else if voice != nil {
		req.VoiceURL = voice.Url
	}
	if music, err := p.store.CurrentAudio(project.ID, models.AudioKindMusic); err != nil {
		return nil, fmt.Errorf("load music: %w", err)
	} else if music != nil {
		req.MusicURL = music.Url
	}
	return req, nil
}
