package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/defistate/synthamm/amm"
)

// snapshotFileVersion is bumped when the file layout changes incompatibly.
const snapshotFileVersion = 1

type snapshotFile struct {
	Version int             `json:"version"`
	SavedAt string          `json:"savedAt"`
	Pools   []*amm.Snapshot `json:"pools"`
}

// SnapshotStore persists pool snapshots to a single JSON file.
type SnapshotStore struct {
	path string
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Load returns the stored snapshots. ok is false when the file does not exist.
func (s *SnapshotStore) Load() (snapshots []*amm.Snapshot, ok bool, err error) {
	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return nil, false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}

	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false, fmt.Errorf("parse snapshot: %w", err)
	}
	if f.Version != snapshotFileVersion {
		return nil, false, fmt.Errorf("unsupported snapshot version %d", f.Version)
	}
	return f.Pools, true, nil
}

// Save replaces the stored snapshots. The file is written to a temporary
// path and renamed, so readers never observe a partial write.
func (s *SnapshotStore) Save(snapshots []*amm.Snapshot) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	f := snapshotFile{
		Version: snapshotFileVersion,
		SavedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Pools:   snapshots,
	}
	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
