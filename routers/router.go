package routers

import (
	"github.com/gin-gonic/gin"

	"reelsmith-server/routers/api"
)

// InitRouter wires the HTTP surface onto a gin engine.
func InitRouter(h *api.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.Log))

	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", h.CreateProject)
		v1.GET("/projects/:id", h.GetProject)
		v1.POST("/projects/:id/scenes", h.CreateScenes)
		v1.POST("/projects/:id/produce", h.Produce)
		v1.POST("/projects/:id/storyboard", h.ReturnToStoryboard)
		v1.POST("/projects/:id/compose", h.Compose)
		v1.GET("/projects/:id/progress", h.WatchProgress)
		v1.GET("/tasks/:id", h.GetTask)
		v1.POST("/tasks/:id/cancel", h.CancelTask)
		v1.GET("/tasks/:id/ws", h.WatchTask)
		v1.GET("/proxy", h.Proxy)
	}
	return r
}
