package pulse

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

const snapshotVersion = 1

// SnapshotWriter persists a published state.
type SnapshotWriter interface {
	WriteSnapshot(state core.PulseState) error
}

type snapshotDoc struct {
	Version   int             `json:"version"`
	WrittenAt time.Time       `json:"written_at"`
	State     core.PulseState `json:"state"`
}

// FileSnapshot writes the state as JSON to Path, replacing it atomically.
type FileSnapshot struct {
	Path string
	Now  func() time.Time
}

func (f FileSnapshot) WriteSnapshot(state core.PulseState) error {
	if f.Path == "" {
		return nil
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	data, err := json.MarshalIndent(snapshotDoc{Version: snapshotVersion, WrittenAt: now().UTC(), State: state}, "", "  ")
	if err != nil {
		return fmt.Errorf("pulse: marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pulse: create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("pulse: create snapshot tmp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("pulse: write snapshot tmp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("pulse: sync snapshot tmp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pulse: close snapshot tmp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.Path); err != nil {
		return fmt.Errorf("pulse: rename snapshot tmp file: %w", err)
	}
	return nil
}

var ErrNoSnapshot = errors.New("pulse: no snapshot")

// ReadSnapshot loads a state written by FileSnapshot.
func ReadSnapshot(path string) (core.PulseState, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return core.PulseState{}, time.Time{}, ErrNoSnapshot
		}
		return core.PulseState{}, time.Time{}, fmt.Errorf("pulse: read snapshot: %w", err)
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return core.PulseState{}, time.Time{}, fmt.Errorf("pulse: parse snapshot: %w", err)
	}
	if doc.Version != snapshotVersion {
		return core.PulseState{}, time.Time{}, fmt.Errorf("pulse: unsupported snapshot version %d", doc.Version)
	}
	if doc.State.Readings == nil {
		doc.State.Readings = map[core.ProviderID]core.Reading{}
	}
	return doc.State, doc.WrittenAt, nil
}
