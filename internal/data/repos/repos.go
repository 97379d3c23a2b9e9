package repos

import (
	"github.com/yungbote/modelforge-backend/internal/data/repos/predictors"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
	"gorm.io/gorm"
)

type PredictorRepo = predictors.PredictorRepo
type DatasourceRepo = predictors.DatasourceRepo
type LockedFunc = predictors.LockedFunc

type Repos struct {
	Predictors  PredictorRepo
	Datasources DatasourceRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Predictors:  predictors.NewPredictorRepo(db, log),
		Datasources: predictors.NewDatasourceRepo(db, log),
	}
}
