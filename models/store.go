package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the task-store contract backed by gorm. Consumers in the
// service layer declare the slices of it they need as small interfaces.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- projects ---

func (s *Store) CreateProject(p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	return s.db.Create(p).Error
}

func (s *Store) GetProject(id string) (*Project, error) {
	var p Project
	if err := s.db.First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProjectStatus moves a project through its pipeline, enforcing the
// transition rules.
func (s *Store) UpdateProjectStatus(id, status string) error {
	p, err := s.GetProject(id)
	if err != nil {
		return err
	}
	if !CanTransition(p.Status, status) {
		return fmt.Errorf("invalid project transition %s -> %s", p.Status, status)
	}
	return s.db.Model(&Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

func (s *Store) SetProjectVideo(id, url string) error {
	return s.db.Model(&Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"video_url":  url,
		"updated_at": time.Now(),
	}).Error
}

// --- scenes ---

func (s *Store) BatchCreateScenes(scenes []Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	return s.db.Create(&scenes).Error
}

func (s *Store) ListScenes(projectID string) ([]Scene, error) {
	var scenes []Scene
	err := s.db.Where("project_id = ?", projectID).Order("seq ASC").Find(&scenes).Error
	return scenes, err
}

// --- generation tasks ---

func (s *Store) CreateTask(t *GenerationTask) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = TaskStatusPending
	}
	return s.db.Create(t).Error
}

func (s *Store) GetTask(id string) (*GenerationTask, error) {
	var t GenerationTask
	if err := s.db.First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTaskStatus writes a task's status plus optional result URL and
// error message. Terminal tasks are left untouched.
func (s *Store) UpdateTaskStatus(id, status, resultURL, errMsg string) error {
	t, err := s.GetTask(id)
	if err != nil {
		return err
	}
	if t.Terminal() {
		return nil
	}
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if resultURL != "" {
		updates["result_url"] = resultURL
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return s.db.Model(&GenerationTask{}).Where("id = ?", id).Updates(updates).Error
}

// ListPendingTasks returns every task still awaiting reconciliation. An
// empty projectID means all projects.
func (s *Store) ListPendingTasks(projectID string) ([]GenerationTask, error) {
	q := s.db.Where("status IN ?", []string{TaskStatusPending, TaskStatusProcessing})
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}
	var tasks []GenerationTask
	err := q.Order("created_at ASC").Find(&tasks).Error
	return tasks, err
}

// --- assets ---

// CreateVideoAsset materializes a scene's clip. The unique index on
// scene_id turns a duplicate reconcile into a no-op.
func (s *Store) CreateVideoAsset(projectID, sceneID, url string, duration float64) error {
	now := time.Now()
	a := VideoAsset{
		ID:        uuid.NewString(),
		ProjectId: projectID,
		SceneId:   sceneID,
		Url:       url,
		Duration:  duration,
		Status:    AssetStatusReady,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&a).Error
}

func (s *Store) ListVideoAssets(projectID string) ([]VideoAsset, error) {
	var assets []VideoAsset
	err := s.db.Where("project_id = ?", projectID).Find(&assets).Error
	return assets, err
}

func (s *Store) CreateAudioAsset(projectID, kind, url string, duration float64) error {
	now := time.Now()
	a := AudioAsset{
		ID:        uuid.NewString(),
		ProjectId: projectID,
		Kind:      kind,
		Url:       url,
		Duration:  duration,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.db.Create(&a).Error
}

// CurrentAudio returns the newest track of a kind, or nil when the
// project has none.
func (s *Store) CurrentAudio(projectID, kind string) (*AudioAsset, error) {
	var a AudioAsset
	err := s.db.Where("project_id = ? AND kind = ?", projectID, kind).
		Order("created_at DESC").First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
