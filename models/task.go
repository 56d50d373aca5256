package models

import "time"

// Generation task status values. Completed and Failed are terminal; a
// terminal task is never mutated again.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Generation task types. Only jobs tracked through the async-task
// provider get a task record; sync-poll generation materializes its
// asset directly.
const (
	TaskTypeVideoAsync = "video-async"
	TaskTypeMusicAsync = "music-async"
)

// GenerationTask is the durable handle to a long-running, externally
// hosted job whose completion is learned by polling the provider's
// status endpoint.
type GenerationTask struct {
	ID             string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId      string    `gorm:"index" json:"projectId"`
	SceneId        string    `json:"sceneId,omitempty"`
	Type           string    `json:"type"`
	ExternalTaskId string    `gorm:"index;type:varchar(120)" json:"externalTaskId"`
	Status         string    `gorm:"index" json:"status"`
	ResultUrl      string    `json:"resultUrl,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (GenerationTask) TableName() string {
	return "generation_task"
}

// Terminal reports whether the task has reached a final state.
func (t *GenerationTask) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}
