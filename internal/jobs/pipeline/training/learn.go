package training

import (
	"github.com/yungbote/modelforge-backend/internal/data/datastore"
	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/modules/training/stages"
)

type Learn struct{ deps stages.Deps }

func (p *Learn) Type() string { return jobrt.StageLearn }

// Run hands a bad problem definition or a dataset loading failure to
// stages.FailLearn, so the record gets its error and the datasource cleanup
// still happens.
func (p *Learn) Run(jc *jobrt.Context) error {
	in := stages.LearnInput{
		DF:                     &datastore.Frame{},
		PredictorID:            jc.Job.PredictorID,
		DeleteDatasourceOnFail: jc.Job.DeleteDatasourceOnFail,
		Override:               jc.Job.Override,
		RunID:                  jc.Job.RunID,
	}
	pd, err := problemDefinition(jc)
	if err != nil {
		jc.Log.Warn("Invalid problem definition", "error", err)
		return stages.FailLearn(jc.Ctx, p.deps, in, err)
	}
	in.ProblemDefinition = pd

	df, err := loadFrame(jc, p.deps)
	if err != nil {
		jc.Log.Warn("Dataset load failed", "error", err)
		return stages.FailLearn(jc.Ctx, p.deps, in, err)
	}
	in.DF = df
	return stages.Learn(jc.Ctx, p.deps, in)
}
