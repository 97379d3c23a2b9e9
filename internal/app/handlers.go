package app

import (
	httpH "github.com/yungbote/modelforge-backend/internal/http/handlers"
)

type Handlers struct {
	Predictor *httpH.PredictorHandler
	Worker    *httpH.WorkerHandler
	Health    *httpH.HealthHandler
}

func wireHandlers(svcs Services, checks map[string]httpH.HealthCheck) Handlers {
	return Handlers{
		Predictor: httpH.NewPredictorHandler(svcs.Predictors),
		Worker:    httpH.NewWorkerHandler(svcs.Predictors),
		Health:    httpH.NewHealthHandler(checks),
	}
}
