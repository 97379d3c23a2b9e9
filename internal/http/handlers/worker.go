package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/modelforge-backend/internal/http/response"
	"github.com/yungbote/modelforge-backend/internal/services"
)

type WorkerHandler struct {
	predictors services.PredictorService
}

func NewWorkerHandler(predictors services.PredictorService) *WorkerHandler {
	return &WorkerHandler{predictors: predictors}
}

// GET /api/workers
func (h *WorkerHandler) List(c *gin.Context) {
	workers, err := h.predictors.Workers(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "list_workers_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"workers": workers})
}

// DELETE /api/workers/:pid
func (h *WorkerHandler) Kill(c *gin.Context) {
	pid, err := strconv.Atoi(c.Param("pid"))
	if err != nil || pid <= 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_pid", err)
		return
	}
	if err := h.predictors.Kill(c.Request.Context(), pid); err != nil {
		response.RespondServiceError(c, "kill_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"killed": pid})
}

// POST /api/reconcile?fix=true
func (h *WorkerHandler) Reconcile(c *gin.Context) {
	fix, _ := strconv.ParseBool(c.DefaultQuery("fix", "false"))
	runs, err := h.predictors.Reconcile(c.Request.Context(), fix)
	if err != nil {
		response.RespondServiceError(c, "reconcile_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"abandoned": runs, "fixed": fix})
}
