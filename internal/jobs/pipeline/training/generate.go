package training

import (
	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/modules/training/stages"
)

type Generate struct{ deps stages.Deps }

func (p *Generate) Type() string { return jobrt.StageGenerate }

func (p *Generate) Run(jc *jobrt.Context) error {
	pd, err := problemDefinition(jc)
	if err != nil {
		return err
	}
	df, err := loadFrame(jc, p.deps)
	if err != nil {
		return err
	}
	out, err := stages.Generate(jc.Ctx, p.deps, stages.GenerateInput{
		DF:                df,
		ProblemDefinition: pd,
		PredictorID:       jc.Job.PredictorID,
		Override:          jc.Job.Override,
		RunID:             jc.Job.RunID,
	})
	if err != nil {
		return err
	}
	jc.Log.Info("Generated model code", "code_bytes", len(out.Code))
	return nil
}
