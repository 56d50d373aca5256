package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"reelsmith-server/models"
)

// GetTask returns one generation task's current state.
func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.Store.GetTask(c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, "task not found")
		return
	}
	ok(c, task)
}

// CancelTask stops polling a task and marks it failed. Terminal tasks
// are left as they are.
func (h *Handler) CancelTask(c *gin.Context) {
	task, err := h.Store.GetTask(c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, "task not found")
		return
	}
	if task.Terminal() {
		ok(c, task)
		return
	}
	h.Poller.Stop(task.ExternalTaskId)
	if err := h.Store.UpdateTaskStatus(task.ID, models.TaskStatusFailed, "", "cancelled"); err != nil {
		h.Log.Error("cancel task", zap.Error(err))
		fail(c, http.StatusInternalServerError, "cancel task failed")
		return
	}
	task.Status = models.TaskStatusFailed
	ok(c, task)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WatchTask pushes one task's state over a websocket until it turns
// terminal.
func (h *Handler) WatchTask(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	taskID := c.Param("id")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		task, err := h.Store.GetTask(taskID)
		if err != nil {
			h.Log.Warn("task watch", zap.String("task_id", taskID), zap.Error(err))
			return
		}
		if err := conn.WriteJSON(task); err != nil {
			return
		}
		if task.Terminal() {
			return
		}
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

type progressSnapshot struct {
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
	Scenes    int    `json:"scenes"`
	Ready     int    `json:"ready"`
	Pending   int    `json:"pending"`
	VideoUrl  string `json:"videoUrl,omitempty"`
}

// WatchProgress streams a project's production progress over a
// websocket. The socket polls the store once a second and pushes a
// snapshot; it closes itself once the project completes.
func (h *Handler) WatchProgress(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	projectID := c.Param("id")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		snap, err := h.snapshot(projectID)
		if err != nil {
			h.Log.Warn("progress snapshot", zap.String("project_id", projectID), zap.Error(err))
			return
		}
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
		if snap.Status == models.ProjectStatusCompleted {
			return
		}
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) snapshot(projectID string) (*progressSnapshot, error) {
	project, err := h.Store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	scenes, err := h.Store.ListScenes(projectID)
	if err != nil {
		return nil, err
	}
	assets, err := h.Store.ListVideoAssets(projectID)
	if err != nil {
		return nil, err
	}
	pending, err := h.Store.ListPendingTasks(projectID)
	if err != nil {
		return nil, err
	}
	return &progressSnapshot{
		ProjectID: projectID,
		Status:    project.Status,
		Scenes:    len(scenes),
		Ready:     len(assets),
		Pending:   len(pending),
		VideoUrl:  project.VideoUrl,
	}, nil
}
