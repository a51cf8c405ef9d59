package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"dmsync/internal/usecase"
)

type HealthHandler struct {
	directory *usecase.ConversationDirectory
}

func NewHealthHandler(directory *usecase.ConversationDirectory) *HealthHandler {
	return &HealthHandler{
		directory: directory,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "Client engine is running",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// CheckSyncHealth folds the supervised channel state into a health signal so
// monitoring can tell a running process from a connected one.
func (h *HealthHandler) CheckSyncHealth(c echo.Context) error {
	status := h.directory.ConnectionStatus()
	return c.JSON(http.StatusOK, map[string]string{
		"status":     "ok",
		"connection": string(status),
	})
}
