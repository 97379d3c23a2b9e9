package markers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

type EventOp string

const (
	EventCreated EventOp = "created"
	EventRemoved EventOp = "removed"
)

type Event struct {
	Op  EventOp `json:"op"`
	PID int     `json:"pid"`
	// Marker is set for EventCreated when the file could be read.
	Marker *Marker `json:"marker,omitempty"`
}

// Subscribe starts watching the marker directory and returns a channel of
// events. Watching is active when Subscribe returns; the channel is closed
// when ctx is done or the watcher fails.
func (d *Dir) Subscribe(ctx context.Context) (<-chan Event, error) {
	if !d.Enabled {
		out := make(chan Event)
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out, nil
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return nil, fmt.Errorf("marker dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(d.Path); err != nil {
		w.Close()
		return nil, err
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.log.Warn("Marker watch error", "error", err)
			case fe, ok := <-w.Events:
				if !ok {
					return
				}
				ev, ok := d.translate(fe)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Watch calls fn for every marker event until ctx is done.
func (d *Dir) Watch(ctx context.Context, fn func(Event)) error {
	events, err := d.Subscribe(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		fn(ev)
	}
	return ctx.Err()
}

func (d *Dir) translate(fe fsnotify.Event) (Event, bool) {
	pid, ok := pidOf(filepath.Base(fe.Name))
	if !ok {
		return Event{}, false
	}
	switch {
	case fe.Has(fsnotify.Create):
		ev := Event{Op: EventCreated, PID: pid}
		if m, err := d.read(pid); err == nil {
			ev.Marker = &m
		}
		return ev, true
	case fe.Has(fsnotify.Remove), fe.Has(fsnotify.Rename):
		return Event{Op: EventRemoved, PID: pid}, true
	}
	return Event{}, false
}
