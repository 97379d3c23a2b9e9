package predictors

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

// none|updating|up_to_date|update_failed
const (
	UpdateStatusNone         = "none"
	UpdateStatusUpdating     = "updating"
	UpdateStatusUpToDate     = "up_to_date"
	UpdateStatusUpdateFailed = "update_failed"
)

// Predictor is the durable job record for one trainable model. The data
// column is replaced wholesale on every write: it holds the training marker
// while a run is in flight, the analysis after success, or {"error": ...}.
type Predictor struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID int64  `gorm:"column:company_id;not null;default:0;uniqueIndex:idx_predictor_company_name,priority:1;index" json:"company_id"`
	Name      string `gorm:"column:name;not null;uniqueIndex:idx_predictor_company_name,priority:2" json:"name"`

	DatasourceID *int64 `gorm:"column:datasource_id;index" json:"datasource_id,omitempty"`

	LearnArgs      datatypes.JSON `gorm:"column:learn_args" json:"learn_args,omitempty"`
	ToPredict      datatypes.JSON `gorm:"column:to_predict" json:"to_predict,omitempty"`
	JSONAIOverride datatypes.JSON `gorm:"column:json_ai_override" json:"json_ai_override,omitempty"`
	JSONAI         datatypes.JSON `gorm:"column:json_ai" json:"json_ai,omitempty"`
	Code           string         `gorm:"column:code;type:text" json:"code,omitempty"`
	Data           datatypes.JSON `gorm:"column:data" json:"data,omitempty"`
	DtypeDict      datatypes.JSON `gorm:"column:dtype_dict" json:"dtype_dict,omitempty"`

	UpdateStatus        string `gorm:"column:update_status;not null;default:'none';index" json:"update_status"`
	EngineVersion       string `gorm:"column:engine_version" json:"engine_version,omitempty"`
	OrchestratorVersion string `gorm:"column:orchestrator_version" json:"orchestrator_version,omitempty"`

	// Stage run that last claimed this record.
	RunID string `gorm:"column:run_id;index" json:"run_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Predictor) TableName() string { return "predictor" }

// TrainingData is the data payload written while a worker is training.
func TrainingData() datatypes.JSON {
	return datatypes.JSON([]byte(`{"training_log":"training"}`))
}

// ErrorData wraps a failure description as the data payload.
func ErrorData(msg string) datatypes.JSON {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return datatypes.JSON(b)
}

// JSONOf marshals v for a JSON column, falling back to null.
func JSONOf(v any) datatypes.JSON {
	if tree, ok := v.(jsontree.Value); ok {
		return datatypes.JSON(tree.Bytes())
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("null"))
	}
	return datatypes.JSON(b)
}

func (p *Predictor) DataMap() map[string]any {
	return objectOf(p.Data)
}

func (p *Predictor) LearnArgsMap() map[string]any {
	return objectOf(p.LearnArgs)
}

// ErrorMessage returns data.error when the last run failed.
func (p *Predictor) ErrorMessage() (string, bool) {
	raw, ok := p.DataMap()["error"]
	if !ok {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case nil:
		return "", true
	default:
		b, _ := json.Marshal(v)
		return string(b), true
	}
}

func (p *Predictor) IsTraining() bool {
	_, ok := p.DataMap()["training_log"]
	return ok
}

// Target is the first column of to_predict, falling back to the target of
// the stored learn args.
func (p *Predictor) Target() string {
	var cols []any
	if len(p.ToPredict) > 0 && json.Unmarshal(p.ToPredict, &cols) == nil {
		for _, c := range cols {
			if s, ok := c.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	var single string
	if len(p.ToPredict) > 0 && json.Unmarshal(p.ToPredict, &single) == nil && single != "" {
		return single
	}
	if s, ok := p.LearnArgsMap()["target"].(string); ok {
		return s
	}
	return ""
}

func (p *Predictor) JSONAITree() (jsontree.Value, error) {
	return treeOf(p.JSONAI)
}

func (p *Predictor) OverrideTree() (jsontree.Value, error) {
	return treeOf(p.JSONAIOverride)
}

func objectOf(raw datatypes.JSON) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func treeOf(raw datatypes.JSON) (jsontree.Value, error) {
	if len(raw) == 0 {
		return jsontree.Null(), nil
	}
	return jsontree.Parse(raw)
}
