package training

import (
	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/modules/training/stages"
)

type Fit struct{ deps stages.Deps }

func (p *Fit) Type() string { return jobrt.StageFit }

func (p *Fit) Run(jc *jobrt.Context) error {
	df, err := loadFrame(jc, p.deps)
	if err != nil {
		return err
	}
	out, err := stages.Fit(jc.Ctx, p.deps, stages.FitInput{
		PredictorID: jc.Job.PredictorID,
		DF:          df,
		RunID:       jc.Job.RunID,
	})
	if err != nil {
		return err
	}
	jc.Log.Info("Fit finished", "artifact", out.ArtifactKey)
	return nil
}
