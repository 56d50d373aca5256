package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"reelsmith-server/models"
)

type createProjectRequest struct {
	Title       string `json:"title" binding:"required"`
	Prompt      string `json:"prompt" binding:"required"`
	AspectRatio string `json:"aspectRatio"`
	Model       string `json:"model"`
}

// CreateProject opens a new project in draft.
func (h *Handler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "16:9"
	}
	if req.Model == "" {
		req.Model = models.ModelFlash
	}
	if req.Model != models.ModelFlash && req.Model != models.ModelEpic {
		fail(c, http.StatusBadRequest, "unknown model: "+req.Model)
		return
	}
	project := &models.Project{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Model:       req.Model,
		Status:      models.ProjectStatusDraft,
	}
	if err := h.Store.CreateProject(project); err != nil {
		h.Log.Error("create project", zap.Error(err))
		fail(c, http.StatusInternalServerError, "create project failed")
		return
	}
	ok(c, project)
}

// GetProject returns a project with its scenes and materialized assets.
func (h *Handler) GetProject(c *gin.Context) {
	id := c.Param("id")
	project, err := h.Store.GetProject(id)
	if err != nil {
		fail(c, http.StatusNotFound, "project not found")
		return
	}
	scenes, err := h.Store.ListScenes(id)
	if err != nil {
		h.Log.Error("list scenes", zap.Error(err))
		fail(c, http.StatusInternalServerError, "load project failed")
		return
	}
	assets, err := h.Store.ListVideoAssets(id)
	if err != nil {
		h.Log.Error("list assets", zap.Error(err))
		fail(c, http.StatusInternalServerError, "load project failed")
		return
	}
	assetBySceneID := make(map[string]models.VideoAsset, len(assets))
	for _, a := range assets {
		assetBySceneID[a.SceneId] = a
	}
	type sceneView struct {
		models.Scene
		Asset *models.VideoAsset `json:"asset,omitempty"`
	}
	views := make([]sceneView, 0, len(scenes))
	for _, s := range scenes {
		v := sceneView{Scene: s}
		if a, found := assetBySceneID[s.ID]; found {
			asset := a
			v.Asset = &asset
		}
		views = append(views, v)
	}
	ok(c, gin.H{"project": project, "scenes": views})
}

type createScenesRequest struct {
	Scenes []struct {
		Prompt string `json:"prompt" binding:"required"`
	} `json:"scenes" binding:"required,min=1"`
}

// CreateScenes writes the project's storyboard in one batch and moves
// the project to storyboarding.
func (h *Handler) CreateScenes(c *gin.Context) {
	id := c.Param("id")
	var req createScenesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	project, err := h.Store.GetProject(id)
	if err != nil {
		fail(c, http.StatusNotFound, "project not found")
		return
	}
	if project.Status == models.ProjectStatusDraft {
		if err := h.Store.UpdateProjectStatus(id, models.ProjectStatusScripting); err != nil {
			fail(c, http.StatusConflict, err.Error())
			return
		}
	}
	scenes := make([]models.Scene, 0, len(req.Scenes))
	for i, s := range req.Scenes {
		scenes = append(scenes, models.Scene{
			ID:        uuid.NewString(),
			ProjectId: id,
			Seq:       i,
			Prompt:    s.Prompt,
			Model:     project.Model,
		})
	}
	if err := h.Store.BatchCreateScenes(scenes); err != nil {
		h.Log.Error("create scenes", zap.Error(err))
		fail(c, http.StatusInternalServerError, "create scenes failed")
		return
	}
	if err := h.Store.UpdateProjectStatus(id, models.ProjectStatusStoryboard); err != nil {
		fail(c, http.StatusConflict, err.Error())
		return
	}
	ok(c, scenes)
}

// Produce enqueues a production run for a storyboarded project.
func (h *Handler) Produce(c *gin.Context) {
	id := c.Param("id")
	project, err := h.Store.GetProject(id)
	if err != nil {
		fail(c, http.StatusNotFound, "project not found")
		return
	}
	if project.Status != models.ProjectStatusStoryboard && project.Status != models.ProjectStatusProduction {
		fail(c, http.StatusConflict, "project is not ready for production: "+project.Status)
		return
	}
	if err := h.Queue.EnqueueProduction(id); err != nil {
		h.Log.Error("enqueue production", zap.Error(err))
		fail(c, http.StatusInternalServerError, "enqueue production failed")
		return
	}
	ok(c, gin.H{"projectId": id, "queued": "production"})
}

// ReturnToStoryboard sends a project in production back to
// storyboarding so its scenes can be revised. Existing assets stay; a
// later production run only generates what the revision left missing.
func (h *Handler) ReturnToStoryboard(c *gin.Context) {
	id := c.Param("id")
	if err := h.Store.UpdateProjectStatus(id, models.ProjectStatusStoryboard); err != nil {
		fail(c, http.StatusConflict, err.Error())
		return
	}
	ok(c, gin.H{"projectId": id, "status": models.ProjectStatusStoryboard})
}

// Compose enqueues the final composition run.
func (h *Handler) Compose(c *gin.Context) {
	id := c.Param("id")
	project, err := h.Store.GetProject(id)
	if err != nil {
		fail(c, http.StatusNotFound, "project not found")
		return
	}
	if project.Status != models.ProjectStatusProduction {
		fail(c, http.StatusConflict, "project is not in production: "+project.Status)
		return
	}
	scenes, err := h.Store.ListScenes(id)
	if err != nil {
		h.Log.Error("list scenes", zap.Error(err))
		fail(c, http.StatusInternalServerError, "load project failed")
		return
	}
	assets, err := h.Store.ListVideoAssets(id)
	if err != nil {
		h.Log.Error("list assets", zap.Error(err))
		fail(c, http.StatusInternalServerError, "load project failed")
		return
	}
	if len(assets) < len(scenes) {
		h.Log.Warn("composing with missing scene clips",
			zap.String("project_id", id),
			zap.Int("scenes", len(scenes)),
			zap.Int("assets", len(assets)))
	}
	if err := h.Queue.EnqueueComposition(id); err != nil {
		h.Log.Error("enqueue composition", zap.Error(err))
		fail(c, http.StatusInternalServerError, "enqueue composition failed")
		return
	}
	ok(c, gin.H{"projectId": id, "queued": "composition"})
}
