package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"reelsmith-server/config"
)

const (
	TypeProductionRun  = "production:run"
	TypeCompositionRun = "composition:run"
)

type ProductionPayload struct {
	ProjectID string `json:"project_id"`
}

type CompositionPayload struct {
	ProjectID string `json:"project_id"`
}

// Queue wraps the asynq client for enqueueing background runs.
type Queue struct {
	client *asynq.Client
	log    *zap.Logger
}

func NewQueue(cfg *config.Config, log *zap.Logger) *Queue {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	return &Queue{client: client, log: log}
}

func (q *Queue) EnqueueProduction(projectID string) error {
	return q.enqueue(TypeProductionRun, ProductionPayload{ProjectID: projectID})
}

func (q *Queue) EnqueueComposition(projectID string) error {
	return q.enqueue(TypeCompositionRun, CompositionPayload{ProjectID: projectID})
}

func (q *Queue) enqueue(taskType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, body,
		asynq.MaxRetry(3),
		asynq.Timeout(60*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	info, err := q.client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	q.log.Info("job enqueued",
		zap.String("type", taskType),
		zap.String("queue_id", info.ID))
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
