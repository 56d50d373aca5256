package models

import "time"

// Generation models. The model a scene was produced with fixes its visual
// duration and decides which provider shape the dispatcher uses: flash
// jobs are fast enough to hold a poll loop open, epic jobs are tracked as
// external async tasks.
const (
	ModelFlash = "flash"
	ModelEpic  = "epic"
)

const (
	ModelFlashSceneSeconds = 4
	ModelEpicSceneSeconds  = 8
)

// SceneSeconds returns the fixed per-scene visual duration for a model.
func SceneSeconds(model string) int {
	if model == ModelEpic {
		return ModelEpicSceneSeconds
	}
	return ModelFlashSceneSeconds
}

// Scene is one ordered unit of the movie. Scenes are created in bulk when
// a script is finalized and are never reordered.
type Scene struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId string    `gorm:"index" json:"projectId"`
	Seq       int       `json:"seq"`
	Prompt    string    `json:"prompt"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Scene) TableName() string {
	return "scene"
}
