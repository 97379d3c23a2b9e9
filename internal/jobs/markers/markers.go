// Package markers keeps one advisory file per running worker process.
//
// Markers are diagnostics only: a marker left behind by a crashed worker is
// stale, and the predictor record stays the source of truth for outcomes.
package markers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

type Marker struct {
	PID         int       `json:"pid"`
	RunID       string    `json:"run_id"`
	Stage       string    `json:"stage"`
	PredictorID int64     `json:"predictor_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// DefaultPath is $TMPDIR/modelforge/learn_processes.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "modelforge", "learn_processes")
}

type Dir struct {
	Path string
	// Enabled is false on platforms without POSIX process semantics; every
	// operation is then a no-op.
	Enabled bool
	log     *logger.Logger
}

func New(path string, baseLog *logger.Logger) *Dir {
	if path == "" {
		path = DefaultPath()
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Dir{
		Path:    path,
		Enabled: runtime.GOOS != "windows" && runtime.GOOS != "plan9",
		log:     baseLog.With("component", "WorkerMarkers"),
	}
}

func (d *Dir) file(pid int) string {
	return filepath.Join(d.Path, strconv.Itoa(pid))
}

// Create writes the marker for m.PID, replacing any stale one.
func (d *Dir) Create(m Marker) error {
	if !d.Enabled {
		return nil
	}
	if m.PID <= 0 {
		return fmt.Errorf("marker: invalid pid %d", m.PID)
	}
	if m.StartedAt.IsZero() {
		m.StartedAt = time.Now().UTC()
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return fmt.Errorf("marker dir: %w", err)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.Path, ".marker-*")
	if err != nil {
		return fmt.Errorf("marker %d: %w", m.PID, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("marker %d: %w", m.PID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("marker %d: %w", m.PID, err)
	}
	if err := os.Rename(tmp.Name(), d.file(m.PID)); err != nil {
		return fmt.Errorf("marker %d: %w", m.PID, err)
	}
	return nil
}

// Remove deletes the marker for pid. A missing marker is not an error.
func (d *Dir) Remove(pid int) error {
	if !d.Enabled {
		return nil
	}
	if err := os.Remove(d.file(pid)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("marker %d: %w", pid, err)
	}
	return nil
}

// List returns the readable markers ordered by pid. Files that are not
// markers or cannot be decoded are skipped.
func (d *Dir) List() ([]Marker, error) {
	if !d.Enabled {
		return nil, nil
	}
	entries, err := os.ReadDir(d.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	out := make([]Marker, 0, len(entries))
	for _, e := range entries {
		pid, ok := pidOf(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		m, err := d.read(pid)
		if err != nil {
			d.log.Debug("Skipping unreadable marker", "pid", pid, "error", err)
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// Has reports whether a marker exists for pid.
func (d *Dir) Has(pid int) bool {
	if !d.Enabled {
		return false
	}
	_, err := os.Stat(d.file(pid))
	return err == nil
}

func (d *Dir) read(pid int) (Marker, error) {
	b, err := os.ReadFile(d.file(pid))
	if err != nil {
		return Marker{}, err
	}
	var m Marker
	if err := json.Unmarshal(b, &m); err != nil {
		return Marker{}, err
	}
	if m.PID == 0 {
		m.PID = pid
	}
	return m, nil
}

func pidOf(name string) (int, bool) {
	pid, err := strconv.Atoi(name)
	return pid, err == nil && pid > 0
}
