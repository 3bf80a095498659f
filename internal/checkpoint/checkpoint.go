// Package checkpoint persists the catalog position reached by the consumer so
// an interrupted run can resume where it left off.
package checkpoint

import (
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"

	"github.com/bamsammich/segfeed/internal/catalog"
)

// ErrKeyMismatch is returned when a checkpoint file belongs to a different
// manifest or seed.
var ErrKeyMismatch = errors.New("checkpoint belongs to another manifest")

// State is one saved resume point.
type State struct {
	RunID    uuid.UUID
	Position catalog.Position
	Seq      int64
	Saved    time.Time
}

// Store is a SQLite-backed checkpoint for one manifest and seed.
type Store struct {
	db   *sql.DB
	path string
	key  string
}

// Key fingerprints a manifest's contents and the shuffle seed. Two runs with
// the same key visit samples in the same order.
func Key(manifest []byte, seed uint64) string {
	h := blake3.New()
	h.Write(manifest)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	h.Write([]byte{0})
	h.Write(b[:])
	digest := h.Sum(nil)
	return hex.EncodeToString(digest[:8])
}

// DefaultPath returns $XDG_STATE_HOME/segfeed/<key>.db, falling back to
// ~/.local/state and then the temp dir.
func DefaultPath(key string) string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "segfeed", key+".db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "segfeed", key+".db")
	}
	return filepath.Join(os.TempDir(), "segfeed-"+key+".db")
}

// Open opens (or creates) the checkpoint database at path. An existing
// database written for a different key is rejected with ErrKeyMismatch.
func Open(path, key string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	s := &Store{db: db, path: path, key: key}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS position (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			run_id  TEXT NOT NULL,
			epoch   INTEGER NOT NULL,
			cursor  INTEGER NOT NULL,
			seq     INTEGER NOT NULL,
			saved   INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	var stored string
	err = s.db.QueryRow("SELECT value FROM meta WHERE key = 'manifest_key'").Scan(&stored)
	switch {
	case err == nil:
		if stored != s.key {
			return fmt.Errorf("%w: stored %s, got %s", ErrKeyMismatch, stored, s.key)
		}
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO meta (key, value) VALUES ('manifest_key', ?)", s.key); err != nil {
			return fmt.Errorf("store meta: %w", err)
		}
	default:
		return fmt.Errorf("read meta: %w", err)
	}
	return nil
}

// Save replaces the stored resume point.
func (s *Store) Save(st State) error {
	if st.Saved.IsZero() {
		st.Saved = time.Now()
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO position (id, run_id, epoch, cursor, seq, saved) VALUES (1, ?, ?, ?, ?, ?)",
		st.RunID.String(), st.Position.Epoch, st.Position.Cursor, st.Seq, st.Saved.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load returns the stored resume point. ok is false when nothing was saved.
func (s *Store) Load() (st State, ok bool, err error) {
	var runID string
	var saved int64
	err = s.db.QueryRow("SELECT run_id, epoch, cursor, seq, saved FROM position WHERE id = 1").
		Scan(&runID, &st.Position.Epoch, &st.Position.Cursor, &st.Seq, &saved)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("load checkpoint: %w", err)
	}
	if st.RunID, err = uuid.Parse(runID); err != nil {
		return State{}, false, fmt.Errorf("load checkpoint: run id: %w", err)
	}
	st.Saved = time.Unix(0, saved)
	return st, true, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Remove deletes the checkpoint database file and its WAL companions.
func (s *Store) Remove() error {
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(s.path + suffix)
	}
	return os.Remove(s.path)
}

// Path returns the path to the checkpoint database file.
func (s *Store) Path() string { return s.path }

// Recorder saves every Nth consumed batch's position. Record is cheap for the
// batches in between.
type Recorder struct {
	store *Store
	runID uuid.UUID
	every int64

	mu      sync.Mutex
	pending *State
}

// NewRecorder returns a Recorder writing to store every `every` batches.
// every <= 0 saves every batch.
func NewRecorder(store *Store, runID uuid.UUID, every int) *Recorder {
	if every <= 0 {
		every = 1
	}
	return &Recorder{store: store, runID: runID, every: int64(every)}
}

// Record notes that batch seq, ending at pos, was consumed. saved reports
// whether this call wrote the checkpoint.
func (r *Recorder) Record(seq int64, pos catalog.Position) (saved bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = &State{RunID: r.runID, Position: pos, Seq: seq}
	if seq%r.every != 0 {
		return false, nil
	}
	if err := r.flushLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// Flush writes the most recent unsaved position, if any.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

func (r *Recorder) flushLocked() error {
	if r.pending == nil {
		return nil
	}
	if err := r.store.Save(*r.pending); err != nil {
		return err
	}
	r.pending = nil
	return nil
}
