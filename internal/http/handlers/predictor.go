package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/modelforge-backend/internal/http/response"
	"github.com/yungbote/modelforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
	"github.com/yungbote/modelforge-backend/internal/services"
)

type PredictorHandler struct {
	predictors services.PredictorService
}

func NewPredictorHandler(predictors services.PredictorService) *PredictorHandler {
	return &PredictorHandler{predictors: predictors}
}

type learnBody struct {
	Name                   string         `json:"name"`
	DatasourceID           int64          `json:"datasource_id"`
	ProblemDefinition      map[string]any `json:"problem_definition"`
	Override               jsontree.Value `json:"override"`
	DeleteDatasourceOnFail bool           `json:"delete_datasource_on_fail"`
	Join                   bool           `json:"join"`
	JoinTimeoutSeconds     float64        `json:"join_timeout_seconds"`
}

type retrainBody struct {
	Join               bool    `json:"join"`
	JoinTimeoutSeconds float64 `json:"join_timeout_seconds"`
}

func launchPayload(res *services.LaunchResult) gin.H {
	out := gin.H{
		"run_id":    res.RunID,
		"exited":    res.Exited,
		"predictor": res.Predictor,
	}
	if res.Handle != nil {
		out["pid"] = res.Handle.PID
		out["stage"] = res.Handle.Stage
	}
	return out
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// POST /api/predictors
func (h *PredictorHandler) Learn(c *gin.Context) {
	var body learnBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("name is required"))
		return
	}
	res, err := h.predictors.Learn(c.Request.Context(), services.LearnRequest{
		CompanyID:              ctxutil.CompanyID(c.Request.Context()),
		Name:                   body.Name,
		DatasourceID:           body.DatasourceID,
		ProblemDefinition:      body.ProblemDefinition,
		Override:               body.Override,
		DeleteDatasourceOnFail: body.DeleteDatasourceOnFail,
		Join:                   body.Join,
		JoinTimeout:            seconds(body.JoinTimeoutSeconds),
	})
	if err != nil {
		response.RespondServiceError(c, "learn_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, launchPayload(res))
}

// GET /api/predictors
func (h *PredictorHandler) List(c *gin.Context) {
	list, err := h.predictors.List(c.Request.Context(), ctxutil.CompanyID(c.Request.Context()))
	if err != nil {
		response.RespondServiceError(c, "list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"predictors": list})
}

// GET /api/predictors/:name
func (h *PredictorHandler) Get(c *gin.Context) {
	rec, err := h.predictors.Get(c.Request.Context(), ctxutil.CompanyID(c.Request.Context()), c.Param("name"))
	if err != nil {
		response.RespondServiceError(c, "predictor_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"predictor": rec})
}

// POST /api/predictors/:name/update
func (h *PredictorHandler) Retrain(c *gin.Context) {
	var body retrainBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	res, err := h.predictors.Retrain(c.Request.Context(), services.RetrainRequest{
		CompanyID:   ctxutil.CompanyID(c.Request.Context()),
		Name:        c.Param("name"),
		Join:        body.Join,
		JoinTimeout: seconds(body.JoinTimeoutSeconds),
	})
	if err != nil {
		response.RespondServiceError(c, "update_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, launchPayload(res))
}

// PUT /api/predictors/:name/json_ai
func (h *PredictorHandler) EditJSONAI(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	tree, err := jsontree.Parse(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json_ai", err)
		return
	}
	rec, err := h.predictors.EditJSONAI(c.Request.Context(), ctxutil.CompanyID(c.Request.Context()), c.Param("name"), tree)
	if err != nil {
		response.RespondServiceError(c, "edit_json_ai_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"predictor": rec})
}
