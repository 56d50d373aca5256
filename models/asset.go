package models

import "time"

const (
	AudioKindVoiceover = "voiceover"
	AudioKindMusic     = "music"
)

const (
	AssetStatusReady = "ready"
)

// VideoAsset is the materialized clip for one scene. The unique index on
// SceneId is what makes asset creation idempotent: reconciling the same
// completed task twice degrades to a no-op instead of a duplicate row.
type VideoAsset struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId string    `gorm:"index" json:"projectId"`
	SceneId   string    `gorm:"uniqueIndex;type:varchar(64)" json:"sceneId"`
	Url       string    `json:"url"`
	Duration  float64   `json:"duration"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (VideoAsset) TableName() string {
	return "video_asset"
}

// AudioAsset is a narration or music track for a project. Multiple rows
// per kind may exist; the newest one is the current track.
type AudioAsset struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId string    `gorm:"index" json:"projectId"`
	Kind      string    `json:"kind"`
	Url       string    `json:"url"`
	Duration  float64   `json:"duration,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (AudioAsset) TableName() string {
	return "audio_asset"
}
