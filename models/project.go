package models

import "time"

// Project status values. Progression is forward-only with one explicit
// exception: a project in Production may be sent back to Storyboarding.
const (
	ProjectStatusDraft      = "draft"
	ProjectStatusScripting  = "scripting"
	ProjectStatusStoryboard = "storyboarding"
	ProjectStatusProduction = "production"
	ProjectStatusCompleted  = "completed"
)

// projectOrder gives each status its position in the forward pipeline.
var projectOrder = map[string]int{
	ProjectStatusDraft:      0,
	ProjectStatusScripting:  1,
	ProjectStatusStoryboard: 2,
	ProjectStatusProduction: 3,
	ProjectStatusCompleted:  4,
}

// CanTransition reports whether a project may move from one status to
// another: strictly forward, plus the Production -> Storyboarding return.
func CanTransition(from, to string) bool {
	fo, ok1 := projectOrder[from]
	to_, ok2 := projectOrder[to]
	if !ok1 || !ok2 {
		return false
	}
	if from == ProjectStatusProduction && to == ProjectStatusStoryboard {
		return true
	}
	return to_ == fo+1
}

type Project struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title       string    `json:"title"`
	Prompt      string    `json:"prompt"`
	AspectRatio string    `json:"aspectRatio"`
	Model       string    `json:"model"`
	Status      string    `json:"status"`
	VideoUrl    string    `json:"videoUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}
