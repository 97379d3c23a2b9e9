package domain

import (
	"github.com/yungbote/modelforge-backend/internal/domain/predictors"
)

const (
	UpdateStatusNone         = predictors.UpdateStatusNone
	UpdateStatusUpdating     = predictors.UpdateStatusUpdating
	UpdateStatusUpToDate     = predictors.UpdateStatusUpToDate
	UpdateStatusUpdateFailed = predictors.UpdateStatusUpdateFailed
)

type Predictor = predictors.Predictor
type Datasource = predictors.Datasource

var (
	TrainingData = predictors.TrainingData
	ErrorData    = predictors.ErrorData
	JSONOf       = predictors.JSONOf
)
