package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reelsmith-server/compositor"
	"reelsmith-server/models"
)

type fakeProcessorStore struct {
	mu       sync.Mutex
	project  *models.Project
	scenes   []models.Scene
	assets   []models.VideoAsset
	pending  []models.GenerationTask
	audio    map[string]*models.AudioAsset
	statuses []string
	videoURL string
}

func (s *fakeProcessorStore) GetProject(id string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *s.project
	return &p, nil
}

func (s *fakeProcessorStore) UpdateProjectStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !models.CanTransition(s.project.Status, status) {
		return assert.AnError
	}
	s.project.Status = status
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeProcessorStore) SetProjectVideo(id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoURL = url
	return nil
}

func (s *fakeProcessorStore) ListScenes(projectID string) ([]models.Scene, error) {
	return s.scenes, nil
}

func (s *fakeProcessorStore) ListVideoAssets(projectID string) ([]models.VideoAsset, error) {
	return s.assets, nil
}

func (s *fakeProcessorStore) ListPendingTasks(projectID string) ([]models.GenerationTask, error) {
	return s.pending, nil
}

func (s *fakeProcessorStore) CurrentAudio(projectID, kind string) (*models.AudioAsset, error) {
	return s.audio[kind], nil
}

type fakeProducer struct {
	report      *ProductionReport
	musicCalled bool
}

func (p *fakeProducer) ProduceMissing(ctx context.Context, project *models.Project) (*ProductionReport, error) {
	return p.report, nil
}

func (p *fakeProducer) ProduceMusic(ctx context.Context, project *models.Project) (string, error) {
	p.musicCalled = true
	return "music-task-1", nil
}

type fakeComposer struct {
	req      *compositor.Request
	artifact *compositor.Artifact
	err      error
}

func (c *fakeComposer) Compose(ctx context.Context, req compositor.Request) (*compositor.Artifact, error) {
	c.req = &req
	if c.err != nil {
		return nil, c.err
	}
	return c.artifact, nil
}

func productionTask(t *testing.T, projectID string) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(ProductionPayload{ProjectID: projectID})
	require.NoError(t, err)
	return asynq.NewTask(TypeProductionRun, body)
}

func compositionTask(t *testing.T, projectID string) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(CompositionPayload{ProjectID: projectID})
	require.NoError(t, err)
	return asynq.NewTask(TypeCompositionRun, body)
}

func newTestProcessor(store *fakeProcessorStore, producer *fakeProducer, composer *fakeComposer) *Processor {
	return &Processor{
		store:      store,
		dispatcher: producer,
		composer:   composer,
		storage:    fakeUploader{},
		log:        zap.NewNop(),
	}
}

func TestHandleProductionRunMovesProjectAndStartsMusic(t *testing.T) {
	store := &fakeProcessorStore{
		project: &models.Project{ID: "proj-1", Model: models.ModelFlash, Status: models.ProjectStatusStoryboard},
		audio:   map[string]*models.AudioAsset{},
	}
	producer := &fakeProducer{report: &ProductionReport{Requested: 3, Generated: 3}}
	p := newTestProcessor(store, producer, &fakeComposer{})

	err := p.HandleProductionRun(context.Background(), productionTask(t, "proj-1"))
	require.NoError(t, err)

	assert.Equal(t, models.ProjectStatusProduction, store.project.Status)
	assert.True(t, producer.musicCalled)
}

func TestHandleProductionRunSkipsMusicWhenPresent(t *testing.T) {
	store := &fakeProcessorStore{
		project: &models.Project{ID: "proj-1", Status: models.ProjectStatusProduction},
		audio: map[string]*models.AudioAsset{
			models.AudioKindMusic: {ID: "audio-1", Kind: models.AudioKindMusic},
		},
	}
	producer := &fakeProducer{report: &ProductionReport{}}
	p := newTestProcessor(store, producer, &fakeComposer{})

	require.NoError(t, p.HandleProductionRun(context.Background(), productionTask(t, "proj-1")))
	assert.False(t, producer.musicCalled)
}

func TestHandleProductionRunSkipsMusicWhenPending(t *testing.T) {
	store := &fakeProcessorStore{
		project: &models.Project{ID: "proj-1", Status: models.ProjectStatusProduction},
		audio:   map[string]*models.AudioAsset{},
		pending: []models.GenerationTask{{Type: models.TaskTypeMusicAsync, Status: models.TaskStatusProcessing}},
	}
	producer := &fakeProducer{report: &ProductionReport{}}
	p := newTestProcessor(store, producer, &fakeComposer{})

	require.NoError(t, p.HandleProductionRun(context.Background(), productionTask(t, "proj-1")))
	assert.False(t, producer.musicCalled)
}

func TestHandleCompositionRunBuildsRequestAndCompletes(t *testing.T) {
	store := &fakeProcessorStore{
		project: &models.Project{
			ID: "proj-1", Model: models.ModelEpic,
			AspectRatio: "9:16", Status: models.ProjectStatusProduction,
		},
		scenes: []models.Scene{
			{ID: "s1", Seq: 0}, {ID: "s2", Seq: 1},
		},
		assets: []models.VideoAsset{
			{SceneId: "s1", Url: "https://b/s1.mp4"},
			{SceneId: "s2", Url: "https://b/s2.mp4"},
		},
		audio: map[string]*models.AudioAsset{
			models.AudioKindVoiceover: {Url: "https://b/voice.mp3"},
			models.AudioKindMusic:     {Url: "https://b/music.mp3"},
		},
	}
	composer := &fakeComposer{artifact: &compositor.Artifact{
		Data:     []byte("movie"),
		MimeType: "video/mp4",
		Duration: 16 * time.Second,
	}}
	p := newTestProcessor(store, &fakeProducer{}, composer)

	err := p.HandleCompositionRun(context.Background(), compositionTask(t, "proj-1"))
	require.NoError(t, err)

	require.NotNil(t, composer.req)
	assert.Len(t, composer.req.Scenes, 2)
	assert.Equal(t, 8*time.Second, composer.req.SceneDuration)
	assert.Equal(t, "https://b/s1.mp4", composer.req.VideoURLs["s1"])
	assert.Equal(t, "https://b/voice.mp3", composer.req.VoiceURL)
	assert.Equal(t, "https://b/music.mp3", composer.req.MusicURL)
	assert.Equal(t, "9:16", composer.req.AspectRatio)

	assert.Equal(t, "https://bucket.example.com/projects/proj-1/movie.mp4", store.videoURL)
	assert.Equal(t, models.ProjectStatusCompleted, store.project.Status)
}

func TestHandleCompositionRunComposeFailureLeavesProject(t *testing.T) {
	store := &fakeProcessorStore{
		project: &models.Project{ID: "proj-1", Model: models.ModelFlash, Status: models.ProjectStatusProduction},
		scenes:  []models.Scene{{ID: "s1"}},
		audio:   map[string]*models.AudioAsset{},
	}
	composer := &fakeComposer{err: &compositor.EncodingError{Reason: "start recorder"}}
	p := newTestProcessor(store, &fakeProducer{}, composer)

	err := p.HandleCompositionRun(context.Background(), compositionTask(t, "proj-1"))
	require.Error(t, err)
	assert.Equal(t, models.ProjectStatusProduction, store.project.Status)
	assert.Empty(t, store.videoURL)
}

func TestHandleCompositionRunNoScenesSkipsRetry(t *testing.T) {
	store := &fakeProcessorStore{
		project: &models.Project{ID: "proj-1", Status: models.ProjectStatusProduction},
		audio:   map[string]*models.AudioAsset{},
	}
	p := newTestProcessor(store, &fakeProducer{}, &fakeComposer{})

	err := p.HandleCompositionRun(context.Background(), compositionTask(t, "proj-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
