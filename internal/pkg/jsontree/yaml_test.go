package jsontree

import "testing"

func TestParseYAMLKeepsOrderAndTypes(t *testing.T) {
	v, err := ParseYAML([]byte(`
model:
  module: Regression
  args:
    alpha: 0.5
    fit_on_dev: true
encoders:
  age: Numeric(positive_domain=True)
ignore: [id, 3, ~]
`))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if keys := v.Keys(); len(keys) != 3 || keys[0] != "model" || keys[2] != "ignore" {
		t.Fatalf("keys: got=%v", keys)
	}
	want := MustParse(`{
		"model": {"module": "Regression", "args": {"alpha": 0.5, "fit_on_dev": true}},
		"encoders": {"age": "Numeric(positive_domain=True)"},
		"ignore": ["id", 3, null]
	}`)
	if !Equal(v, want) {
		t.Fatalf("ParseYAML: want=%s got=%s", want.Bytes(), v.Bytes())
	}
}

func TestParseYAMLAcceptsJSONAndEmpty(t *testing.T) {
	v, err := ParseYAML([]byte(`{"b": 1, "a": "x"}`))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if keys := v.Keys(); keys[0] != "b" {
		t.Fatalf("keys: got=%v", keys)
	}
	empty, err := ParseYAML(nil)
	if err != nil || !empty.IsNull() {
		t.Fatalf("ParseYAML(nil): want null got=%s err=%v", empty.Bytes(), err)
	}
	if _, err := ParseYAML([]byte("a: [1, 2")); err == nil {
		t.Fatalf("ParseYAML: expected error for broken yaml")
	}
}
