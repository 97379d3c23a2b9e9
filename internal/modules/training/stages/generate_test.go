package stages

import (
	"context"
	"strings"
	"testing"

	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
)

func TestGenerateStoresOverriddenDescriptionAndCode(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t, nil)

	out, err := Generate(context.Background(), h.deps, GenerateInput{
		DF:                testFrame(),
		ProblemDefinition: synth.ProblemDefinition{Target: "y"},
		PredictorID:       p.ID,
		Override:          jsontree.MustParse(`{"model": "Regression(alpha=0.1)"}`),
		RunID:             "run-1",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	rec := h.reload(t, p.ID)
	tree, err := rec.JSONAITree()
	if err != nil {
		t.Fatalf("JSONAITree: %v", err)
	}
	model, _ := tree.Get("model")
	want := jsontree.MustParse(`{"module":"Regression","args":{"depth":"2","alpha":"0.1"}}`)
	if !jsontree.Equal(model, want) {
		t.Fatalf("json_ai.model: want=%s got=%s", want.Bytes(), model.Bytes())
	}
	if rec.Code != out.Code || rec.Code != string(tree.Bytes()) {
		t.Fatalf("code must derive from stored json_ai:\ncode=%s\njson_ai=%s", rec.Code, tree.Bytes())
	}
	if rec.RunID != "run-1" {
		t.Fatalf("run_id: want=run-1 got=%q", rec.RunID)
	}
}

func TestGenerateFailureWritesNothing(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t, nil)
	h.engine.compileErr = errBoom

	_, err := Generate(context.Background(), h.deps, GenerateInput{
		DF:                testFrame(),
		ProblemDefinition: synth.ProblemDefinition{Target: "y"},
		PredictorID:       p.ID,
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Generate: want boom got=%v", err)
	}
	rec := h.reload(t, p.ID)
	if rec.Code != "" || len(rec.JSONAI) != 0 && string(rec.JSONAI) != "null" {
		t.Fatalf("Generate failure wrote state: code=%q json_ai=%s", rec.Code, rec.JSONAI)
	}
}

func TestGenerateRejectsMalformedOverride(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t, nil)
	_, err := Generate(context.Background(), h.deps, GenerateInput{
		DF:                testFrame(),
		ProblemDefinition: synth.ProblemDefinition{Target: "y"},
		PredictorID:       p.ID,
		Override:          jsontree.MustParse(`{"model": "Regression(0.1)"}`),
	})
	if err == nil {
		t.Fatalf("Generate: expected error for malformed module reference")
	}
}

func TestAdjustIsNoop(t *testing.T) {
	h := newHarness(t)
	p := h.seedWithCode(t)
	before := h.reload(t, p.ID)
	if err := Adjust(context.Background(), h.deps, AdjustInput{PredictorID: p.ID}); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	after := h.reload(t, p.ID)
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.Code != before.Code {
		t.Fatalf("Adjust changed the record")
	}
}
