// Package baseline is a small deterministic engine: it types each column,
// describes a mean/majority model, and reports training-set accuracy. It
// lets the pipeline run end to end without an external engine.
package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/modelforge-backend/internal/data/datastore"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

const Version = "baseline-1.2.0"

const (
	DtypeInteger     = "integer"
	DtypeFloat       = "float"
	DtypeBinary      = "binary"
	DtypeCategorical = "categorical"
	DtypeText        = "text"
	DtypeEmpty       = "empty"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) Version() string { return Version }

func (e *Engine) InferDescription(ctx context.Context, df *datastore.Frame, pd synth.ProblemDefinition) (jsontree.Value, error) {
	if df == nil || len(df.Columns) == 0 {
		return jsontree.Value{}, fmt.Errorf("infer: empty dataframe")
	}
	if df.Index(pd.Target) < 0 {
		return jsontree.Value{}, fmt.Errorf("infer: target column %q not in dataframe", pd.Target)
	}

	dtypes := jsontree.Map()
	encoders := jsontree.Map()
	for _, col := range df.Columns {
		if err := ctx.Err(); err != nil {
			return jsontree.Value{}, err
		}
		if pd.Ignores(col) {
			continue
		}
		cells, _ := df.Column(col)
		dt := inferDtype(cells)
		dtypes = dtypes.Set(col, jsontree.String(dt))
		if col == pd.Target {
			continue
		}
		encoders = encoders.Set(col, jsontree.Map(
			jsontree.F("module", jsontree.String(encoderFor(dt))),
			jsontree.F("args", jsontree.Map()),
		))
	}

	targetDtype, _ := dtypes.Get(pd.Target)
	return jsontree.Map(
		jsontree.F("problem_definition", jsontree.FromAny(pd.Map())),
		jsontree.F("dtype_dict", dtypes),
		jsontree.F("encoders", encoders),
		jsontree.F("model", jsontree.Map(
			jsontree.F("module", jsontree.String("Baseline")),
			jsontree.F("args", jsontree.Map(
				jsontree.F("target_dtype", targetDtype),
			)),
		)),
	), nil
}

// Compile checks the description's shape and emits its canonical JSON as
// the model code.
func (e *Engine) Compile(ctx context.Context, desc jsontree.Value) (string, error) {
	if !desc.IsMap() {
		return "", fmt.Errorf("compile: description must be an object, got %s", desc.Kind())
	}
	model, ok := desc.Get("model")
	if !ok || !model.IsMap() {
		return "", fmt.Errorf("compile: description has no model")
	}
	if name, _ := model.Get("module"); !nonEmptyString(name) {
		return "", fmt.Errorf("compile: model.module must be a non-empty string")
	}
	pd, ok := desc.Get("problem_definition")
	if !ok {
		return "", fmt.Errorf("compile: description has no problem_definition")
	}
	if target, _ := pd.Get("target"); !nonEmptyString(target) {
		return "", fmt.Errorf("compile: problem_definition.target must be a non-empty string")
	}
	return string(desc.Bytes()), nil
}

func nonEmptyString(v jsontree.Value) bool {
	s, ok := v.Str()
	return ok && strings.TrimSpace(s) != ""
}

type program struct {
	ProblemDefinition map[string]any    `json:"problem_definition"`
	DtypeDict         map[string]string `json:"dtype_dict"`
	Model             struct {
		Module string         `json:"module"`
		Args   map[string]any `json:"args"`
	} `json:"model"`
}

func (e *Engine) Load(ctx context.Context, code string) (synth.Model, error) {
	var p program
	dec := json.NewDecoder(strings.NewReader(code))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("load: code is not a baseline program: %w", err)
	}
	pd, err := synth.ProblemDefinitionFromMap(p.ProblemDefinition)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return &Model{code: code, module: p.Model.Module, pd: pd, dtypes: p.DtypeDict}, nil
}

// Model predicts the training mean (numeric targets) or the majority class.
type Model struct {
	code   string
	module string
	pd     synth.ProblemDefinition
	dtypes map[string]string

	trained  bool
	numeric  bool
	mean     float64
	majority string
	rows     int
	accuracy float64
	mae      float64
}

func (m *Model) Learn(ctx context.Context, df *datastore.Frame) error {
	cells, ok := df.Column(m.pd.Target)
	if !ok {
		return fmt.Errorf("learn: target column %q not in dataframe", m.pd.Target)
	}
	var values []string
	for _, c := range cells {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.TrimSpace(c) != "" {
			values = append(values, strings.TrimSpace(c))
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("learn: no training rows with a value for %q", m.pd.Target)
	}
	m.rows = len(values)

	if nums, ok := parseFloats(values); ok {
		m.numeric = true
		var sum float64
		for _, n := range nums {
			sum += n
		}
		m.mean = sum / float64(len(nums))
		var ssTot, absErr float64
		for _, n := range nums {
			ssTot += (n - m.mean) * (n - m.mean)
			absErr += math.Abs(n - m.mean)
		}
		m.mae = absErr / float64(len(nums))
		// R² of a mean predictor is 0, unless the target is constant.
		if ssTot == 0 {
			m.accuracy = 1
		}
	} else {
		counts := map[string]int{}
		for _, v := range values {
			counts[v]++
		}
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if m.majority == "" || counts[k] > counts[m.majority] {
				m.majority = k
			}
		}
		m.accuracy = float64(counts[m.majority]) / float64(len(values))
	}
	m.trained = true
	return nil
}

func (m *Model) Save(path string) error {
	if !m.trained {
		return fmt.Errorf("save: model is not trained")
	}
	blob := map[string]any{
		"engine":   Version,
		"code":     m.code,
		"analysis": m.Analysis(),
	}
	b, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *Model) Analysis() map[string]any {
	out := map[string]any{
		"target":        m.pd.Target,
		"module":        m.module,
		"training_rows": m.rows,
		"accuracies":    map[string]any{"training": m.accuracy},
	}
	if m.numeric {
		out["prediction"] = m.mean
		out["target_kind"] = "numeric"
		out["mean_absolute_error"] = m.mae
	} else {
		out["prediction"] = m.majority
		out["target_kind"] = "categorical"
	}
	return out
}

func (m *Model) DtypeDict() map[string]string {
	out := make(map[string]string, len(m.dtypes))
	for k, v := range m.dtypes {
		out[k] = v
	}
	return out
}

func inferDtype(cells []string) string {
	var values []string
	for _, c := range cells {
		if s := strings.TrimSpace(c); s != "" {
			values = append(values, s)
		}
	}
	if len(values) == 0 {
		return DtypeEmpty
	}
	allInt := true
	for _, v := range values {
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
			break
		}
	}
	if allInt {
		return DtypeInteger
	}
	if _, ok := parseFloats(values); ok {
		return DtypeFloat
	}
	distinct := map[string]struct{}{}
	longest := 0
	for _, v := range values {
		distinct[v] = struct{}{}
		if n := len(strings.Fields(v)); n > longest {
			longest = n
		}
	}
	switch {
	case len(distinct) == 2:
		return DtypeBinary
	case longest > 5:
		return DtypeText
	default:
		return DtypeCategorical
	}
}

func encoderFor(dtype string) string {
	switch dtype {
	case DtypeInteger, DtypeFloat:
		return "Numeric"
	case DtypeBinary:
		return "Binary"
	case DtypeText:
		return "Text"
	case DtypeEmpty:
		return "Empty"
	default:
		return "Categorical"
	}
}

func parseFloats(values []string) ([]float64, bool) {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

var _ synth.Engine = (*Engine)(nil)
