package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Proxy streams a stored or external media object through the server.
// Provider-hosted results and bucket objects both come through here so
// the frontend only ever talks to one origin.
func (h *Handler) Proxy(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		fail(c, http.StatusBadRequest, "missing url parameter")
		return
	}
	body, contentType, err := h.Storage.Open(c.Request.Context(), rawURL)
	if err != nil {
		h.Log.Warn("proxy open", zap.String("url", rawURL), zap.Error(err))
		fail(c, http.StatusBadGateway, "upstream fetch failed")
		return
	}
	defer body.Close()

	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		h.Log.Debug("proxy stream interrupted", zap.Error(err))
	}
}
