package runtime

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

const (
	StageGenerate = "generate"
	StageFit      = "fit"
	StageLearn    = "learn"
	StageUpdate   = "update"
	StageAdjust   = "adjust"
)

// JobSpec is everything a worker process needs to run one stage. The
// dataframe is not part of it: workers load it through the datasource id.
type JobSpec struct {
	RunID                  string         `json:"run_id"`
	Stage                  string         `json:"stage"`
	PredictorID            int64          `json:"predictor_id,omitempty"`
	DatasourceID           int64          `json:"datasource_id,omitempty"`
	CompanyID              int64          `json:"company_id"`
	Name                   string         `json:"name,omitempty"`
	ProblemDefinition      map[string]any `json:"problem_definition,omitempty"`
	Override               jsontree.Value `json:"override"`
	DeleteDatasourceOnFail bool           `json:"delete_datasource_on_fail,omitempty"`
}

func NewRunID() string { return uuid.NewString() }

func (s JobSpec) Validate() error {
	switch s.Stage {
	case StageGenerate, StageFit, StageLearn, StageAdjust:
		if s.PredictorID <= 0 {
			return fmt.Errorf("job %s: predictor_id is required", s.Stage)
		}
	case StageUpdate:
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("job update: name is required")
		}
	default:
		return fmt.Errorf("job: unknown stage %q", s.Stage)
	}
	if s.RunID == "" {
		return fmt.Errorf("job %s: run_id is required", s.Stage)
	}
	return nil
}

func (s JobSpec) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(s)
}

func DecodeJobSpec(r io.Reader) (JobSpec, error) {
	var s JobSpec
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return JobSpec{}, fmt.Errorf("decode job spec: %w", err)
	}
	if err := s.Validate(); err != nil {
		return JobSpec{}, err
	}
	return s, nil
}
