package runtime

import (
	"bytes"
	"strings"
	"testing"

	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

type stubHandler struct{ stage string }

func (h stubHandler) Type() string       { return h.stage }
func (h stubHandler) Run(*Context) error { return nil }

func TestRegistryRejectsDuplicatesAndEmpty(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubHandler{stage: StageFit}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(stubHandler{stage: StageFit}); err == nil {
		t.Fatalf("Register: expected duplicate error")
	}
	if err := r.Register(stubHandler{}); err == nil {
		t.Fatalf("Register: expected error for empty type")
	}
	if err := r.Register(nil); err == nil {
		t.Fatalf("Register: expected error for nil handler")
	}
	if _, ok := r.Get(StageFit); !ok {
		t.Fatalf("Get(fit): want registered")
	}
	if _, ok := r.Get(StageLearn); ok {
		t.Fatalf("Get(learn): want missing")
	}
	_ = r.Register(stubHandler{stage: StageAdjust})
	if got := strings.Join(r.Stages(), ","); got != "adjust,fit" {
		t.Fatalf("Stages: want=adjust,fit got=%s", got)
	}
}

func TestJobSpecRoundTripKeepsOverrideOrder(t *testing.T) {
	in := JobSpec{
		RunID:             NewRunID(),
		Stage:             StageLearn,
		PredictorID:       7,
		DatasourceID:      3,
		CompanyID:         1,
		ProblemDefinition: map[string]any{"target": "y"},
		Override:          jsontree.MustParse(`{"z":1,"a":"Foo()"}`),
	}
	var buf bytes.Buffer
	if err := in.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := DecodeJobSpec(&buf)
	if err != nil {
		t.Fatalf("DecodeJobSpec: %v", err)
	}
	if out.RunID != in.RunID || out.PredictorID != 7 || out.DatasourceID != 3 {
		t.Fatalf("DecodeJobSpec: got=%+v", out)
	}
	if keys := out.Override.Keys(); len(keys) != 2 || keys[0] != "z" {
		t.Fatalf("override keys: want [z a] got=%v", keys)
	}
}

func TestJobSpecValidate(t *testing.T) {
	cases := []struct {
		name string
		spec JobSpec
		ok   bool
	}{
		{"fit ok", JobSpec{RunID: "r", Stage: StageFit, PredictorID: 1}, true},
		{"fit without id", JobSpec{RunID: "r", Stage: StageFit}, false},
		{"update by name", JobSpec{RunID: "r", Stage: StageUpdate, Name: "p"}, true},
		{"update without name", JobSpec{RunID: "r", Stage: StageUpdate}, false},
		{"unknown stage", JobSpec{RunID: "r", Stage: "train", PredictorID: 1}, false},
		{"missing run id", JobSpec{Stage: StageLearn, PredictorID: 1}, false},
	}
	for _, tc := range cases {
		err := tc.spec.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: want ok=%v got err=%v", tc.name, tc.ok, err)
		}
	}
}

func TestNewContextTagsLogger(t *testing.T) {
	c := NewContext(nil, nil, JobSpec{RunID: "r", Stage: StageFit, PredictorID: 2})
	if c.Ctx == nil || c.Log == nil {
		t.Fatalf("NewContext: want defaults filled")
	}
}
