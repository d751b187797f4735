// Package persistence implements the optional JSON export/import surface
// for sessions and memories. It holds no state of its own: every snapshot
// is read straight out of the live session manager and memory store, and
// every restore writes straight back into them.
package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/localmind/assistant/internal/corerr"
	"github.com/localmind/assistant/internal/memory"
	"github.com/localmind/assistant/internal/session"
)

// Snapshot is the on-disk/over-the-wire shape of a bulk export.
type Snapshot struct {
	Sessions   []session.Session `json:"sessions"`
	Memories   []memory.Memory   `json:"memories"`
	ExportedAt time.Time         `json:"exported_at"`
}

// sessionSource and memorySource narrow session.Manager/memory.Store to
// what the store needs, so a stand-in can be used in tests.
type sessionSource interface {
	All() []session.Session
	Restore(sessions []session.Session)
}

type memorySource interface {
	All(ctx context.Context) ([]memory.Memory, error)
	Restore(ctx context.Context, memories []memory.Memory) error
}

// Store snapshots and restores sessions and memories as a single JSON
// document. If filepath is empty, it only ever holds the snapshot in
// memory (Export/Import still work; nothing touches disk). If filepath is
// set, Save/Load read and write it there, and ScheduleSave queues a
// debounced Save; the store itself never calls ScheduleSave.
type Store struct {
	sessions sessionSource
	memories memorySource

	filepath string

	saveMu    sync.Mutex
	saveTimer *time.Timer
}

// New builds a persistence Store over the given session manager and memory
// store. filepath may be empty to stay disk-free.
func New(sessions sessionSource, memories memorySource, filepath string) *Store {
	return &Store{
		sessions: sessions,
		memories: memories,
		filepath: filepath,
	}
}

// Export captures every live session and memory as a single JSON document.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	mems, err := s.memories.All(ctx)
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "export memories", err)
	}

	snap := Snapshot{
		Sessions:   s.sessions.All(),
		Memories:   mems,
		ExportedAt: time.Now(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, corerr.Wrap(corerr.SerializationError, "marshal snapshot", err)
	}
	return data, nil
}

// Import restores every session and memory from a previously exported JSON
// document. Entries whose id collides with a live one are overwritten.
func (s *Store) Import(ctx context.Context, data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return corerr.Wrap(corerr.SerializationError, "unmarshal snapshot", err)
	}

	s.sessions.Restore(snap.Sessions)

	if err := s.memories.Restore(ctx, snap.Memories); err != nil {
		return corerr.Wrap(corerr.BackendFailure, "restore memories", err)
	}
	return nil
}

// Save writes the current snapshot to filepath. A no-op if filepath is
// empty.
func (s *Store) Save(ctx context.Context) error {
	if s.filepath == "" {
		return nil
	}

	data, err := s.Export(ctx)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filepath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return corerr.Wrap(corerr.BackendFailure, "create persistence directory", err)
		}
	}

	if err := os.WriteFile(s.filepath, data, 0644); err != nil {
		return corerr.Wrap(corerr.BackendFailure, "write snapshot file", err)
	}
	return nil
}

// Load reads filepath and restores its snapshot. A no-op returning nil if
// filepath is empty or the file does not exist yet.
func (s *Store) Load(ctx context.Context) error {
	if s.filepath == "" {
		return nil
	}

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return corerr.Wrap(corerr.BackendFailure, "read snapshot file", err)
	}

	return s.Import(ctx, data)
}

// ScheduleSave debounces Save the same way the dashboard state used to:
// repeated calls within the window collapse into a single write 500ms
// after the last one.
func (s *Store) ScheduleSave(ctx context.Context) {
	if s.filepath == "" {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(500*time.Millisecond, func() {
		s.Save(ctx)
	})
}
