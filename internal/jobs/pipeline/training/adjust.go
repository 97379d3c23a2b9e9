package training

import (
	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/modules/training/stages"
)

type Adjust struct{ deps stages.Deps }

func (p *Adjust) Type() string { return jobrt.StageAdjust }

func (p *Adjust) Run(jc *jobrt.Context) error {
	return stages.Adjust(jc.Ctx, p.deps, stages.AdjustInput{
		PredictorID: jc.Job.PredictorID,
		RunID:       jc.Job.RunID,
	})
}
