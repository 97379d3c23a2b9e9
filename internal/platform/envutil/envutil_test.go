package envutil

import (
	"testing"
	"time"
)

func TestBool(t *testing.T) {
	cases := map[string]bool{"on": true, "YES": true, "0": false, "off": false, "maybe": true}
	for raw, want := range cases {
		t.Setenv("MF_TEST_BOOL", raw)
		if got := Bool("MF_TEST_BOOL", true); got != want {
			t.Fatalf("Bool(%q): want=%v got=%v", raw, want, got)
		}
	}
}

func TestDurationAndString(t *testing.T) {
	t.Setenv("MF_TEST_DUR", "90s")
	if got := Duration("MF_TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("Duration: want=90s got=%s", got)
	}
	t.Setenv("MF_TEST_STR", "")
	if got := String("MF_TEST_STR", "dflt"); got != "dflt" {
		t.Fatalf("String: want=dflt got=%q", got)
	}
}

func TestFloatAndFields(t *testing.T) {
	t.Setenv("MF_TEST_FLOAT", "0.25")
	if got := Float("MF_TEST_FLOAT", 1); got != 0.25 {
		t.Fatalf("Float: want=0.25 got=%v", got)
	}
	t.Setenv("MF_TEST_FLOAT", "x")
	if got := Float("MF_TEST_FLOAT", 1); got != 1 {
		t.Fatalf("Float: want fallback got=%v", got)
	}
	t.Setenv("MF_TEST_FIELDS", " /usr/bin/modelforge  worker ")
	if got := Fields("MF_TEST_FIELDS", nil); len(got) != 2 || got[1] != "worker" {
		t.Fatalf("Fields: got=%q", got)
	}
}
