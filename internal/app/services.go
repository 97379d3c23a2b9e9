package app

import (
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
	"github.com/yungbote/modelforge-backend/internal/services"
)

type Services struct {
	Predictors services.PredictorService
}

func wireServices(log *logger.Logger, a *App) Services {
	log.Info("Wiring services...")
	return Services{
		Predictors: services.NewPredictorService(
			log,
			a.Repos.Predictors,
			a.Repos.Datasources,
			a.Engine,
			a.Supervisor,
			a.Markers,
		),
	}
}
