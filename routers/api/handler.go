package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reelsmith-server/models"
	"reelsmith-server/service"
)

// Handler carries the dependencies the HTTP endpoints share.
type Handler struct {
	Store   *models.Store
	Queue   *service.Queue
	Storage *service.Storage
	Poller  *service.Poller
	Log     *zap.Logger
}

func NewHandler(store *models.Store, queue *service.Queue, storage *service.Storage, poller *service.Poller, log *zap.Logger) *Handler {
	return &Handler{Store: store, Queue: queue, Storage: storage, Poller: poller, Log: log}
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"code": status, "msg": msg})
}
