package markers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newDir(t *testing.T) *Dir {
	t.Helper()
	d := New(filepath.Join(t.TempDir(), "learn_processes"), nil)
	if !d.Enabled {
		t.Skip("markers are disabled on this platform")
	}
	return d
}

func TestCreateListRemove(t *testing.T) {
	d := newDir(t)
	if got, err := d.List(); err != nil || len(got) != 0 {
		t.Fatalf("List on missing dir: want empty got=%v err=%v", got, err)
	}
	for _, pid := range []int{4242, 17} {
		if err := d.Create(Marker{PID: pid, RunID: "r", Stage: "learn", PredictorID: 3}); err != nil {
			t.Fatalf("Create(%d): %v", pid, err)
		}
	}
	if err := os.WriteFile(filepath.Join(d.Path, "99"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	if err := os.WriteFile(filepath.Join(d.Path, "README"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}

	got, err := d.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].PID != 17 || got[1].PID != 4242 {
		t.Fatalf("List: want pids [17 4242] got=%+v", got)
	}
	if got[0].StartedAt.IsZero() || got[0].Stage != "learn" {
		t.Fatalf("List: marker fields not kept: %+v", got[0])
	}
	if !d.Has(17) {
		t.Fatalf("Has(17): want true")
	}

	if err := d.Remove(17); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := d.Remove(17); err != nil {
		t.Fatalf("Remove twice: %v", err)
	}
	if d.Has(17) {
		t.Fatalf("Has(17): want false after Remove")
	}
}

func TestCreateRejectsInvalidPID(t *testing.T) {
	d := newDir(t)
	if err := d.Create(Marker{PID: 0}); err == nil {
		t.Fatalf("Create: expected error for pid 0")
	}
}

func TestSubscribeReportsCreateAndRemove(t *testing.T) {
	d := newDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := d.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := d.Create(Marker{PID: 501, RunID: "run-x", Stage: "fit"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ev := next(t, events)
	if ev.Op != EventCreated || ev.PID != 501 {
		t.Fatalf("event: want created 501 got=%+v", ev)
	}
	if ev.Marker != nil && ev.Marker.RunID != "run-x" {
		t.Fatalf("event marker: got=%+v", ev.Marker)
	}

	if err := d.Remove(501); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for {
		ev = next(t, events)
		if ev.Op == EventRemoved {
			break
		}
	}
	if ev.PID != 501 {
		t.Fatalf("event: want removed 501 got=%+v", ev)
	}

	cancel()
	for range events {
	}
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatalf("events closed early")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for marker event")
	}
	return Event{}
}
