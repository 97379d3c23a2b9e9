package training

import (
	"errors"

	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/modules/training/stages"
)

type Update struct{ deps stages.Deps }

func (p *Update) Type() string { return jobrt.StageUpdate }

// Run turns Update's failure description into an error so the worker exits
// non-zero. The record already carries update_failed at that point.
func (p *Update) Run(jc *jobrt.Context) error {
	failure := stages.Update(jc.Ctx, p.deps, stages.UpdateInput{
		CompanyID: jc.Job.CompanyID,
		Name:      jc.Job.Name,
		RunID:     jc.Job.RunID,
	})
	if failure != "" {
		return errors.New(failure)
	}
	return nil
}
