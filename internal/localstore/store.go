// Package localstore is the on-device durable cache. It is the source of
// truth while offline: points of interest written here render immediately,
// and only truly local-only entries ever reach the disk blob. Remote-origin
// entries are a read-through cache and live in memory only.
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const (
	poisKey      = "pois"
	queueKey     = "sync_queue"
	statsKeyPref = "daily_stats_"
)

// ErrPersistence marks disk/storage failures. Callers treat these as fatal
// to the current operation rather than continuing with partial state.
var ErrPersistence = errors.New("local persistence failure")

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrPersistence, err)
}

// Store holds POIs and day-aggregated statistics. All mutations funnel
// through a single write lock so a read-modify-write on the persisted blob
// never interleaves.
type Store struct {
	db *sql.DB

	writeMu sync.Mutex

	mu   sync.RWMutex
	pois map[string]activity.PointOfInterest

	loadMu  sync.Mutex
	loading bool
}

// Open opens (or creates) the store at path and loads the persisted POI
// blob into memory.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, persistErr("open database", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, persistErr("init schema", err)
	}

	s := &Store{db: db, pois: map[string]activity.PointOfInterest{}}
	if err := s.reload(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) reload() error {
	raw, ok, err := s.getValue(poisKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var list []activity.PointOfInterest
	if err := json.Unmarshal(raw, &list); err != nil {
		return persistErr("decode poi blob", err)
	}
	s.mu.Lock()
	for _, p := range list {
		s.pois[p.ID] = p
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) getValue(key string) ([]byte, bool, error) {
	var raw string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, persistErr("read "+key, err)
	}
	return []byte(raw), true, nil
}

func (s *Store) setValue(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return persistErr("encode "+key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, key, string(raw))
	if err != nil {
		return persistErr("write "+key, err)
	}
	return nil
}

func (s *Store) deleteValue(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return persistErr("delete "+key, err)
	}
	return nil
}

// persistLocked rewrites the POI blob with local-origin entries only; the
// disk copy never duplicates what the remote store already holds durably.
// Callers hold writeMu.
func (s *Store) persistLocked() error {
	s.mu.RLock()
	local := make([]activity.PointOfInterest, 0, len(s.pois))
	for _, p := range s.pois {
		if p.Origin == activity.OriginLocal {
			local = append(local, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(local, func(i, j int) bool { return local[i].CreatedAt < local[j].CreatedAt })
	return s.setValue(poisKey, local)
}

// Put inserts or replaces one POI.
func (s *Store) Put(p activity.PointOfInterest) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.pois[p.ID] = p
	s.mu.Unlock()

	return s.persistLocked()
}

// GetAll returns a snapshot of every cached POI, oldest first.
func (s *Store) GetAll() []activity.PointOfInterest {
	s.mu.RLock()
	out := make([]activity.PointOfInterest, 0, len(s.pois))
	for _, p := range s.pois {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// RemoveBatch deletes the given ids and persists exactly once, regardless
// of batch size. Unknown ids are ignored.
func (s *Store) RemoveBatch(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	for _, id := range ids {
		delete(s.pois, id)
	}
	s.mu.Unlock()

	return s.persistLocked()
}

// ListBySession returns the POIs weakly related to sessionID.
func (s *Store) ListBySession(sessionID string) []activity.PointOfInterest {
	s.mu.RLock()
	var out []activity.PointOfInterest
	for _, p := range s.pois {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Get returns one POI by id.
func (s *Store) Get(id string) (activity.PointOfInterest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pois[id]
	return p, ok
}

// TryBeginLoad claims the load-in-progress guard. A false return means a
// load is already running and the caller must no-op, not queue.
func (s *Store) TryBeginLoad() bool {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loading {
		return false
	}
	s.loading = true
	return true
}

func (s *Store) EndLoad() {
	s.loadMu.Lock()
	s.loading = false
	s.loadMu.Unlock()
}

// PutDailyStats caches one day's performance aggregate.
func (s *Store) PutDailyStats(date string, stats activity.DailyPerformance) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.setValue(statsKeyPref+date, stats)
}

// GetDailyStats returns the cached aggregate for date, if any.
func (s *Store) GetDailyStats(date string) (activity.DailyPerformance, bool, error) {
	raw, ok, err := s.getValue(statsKeyPref + date)
	if err != nil || !ok {
		return activity.DailyPerformance{}, false, err
	}
	var stats activity.DailyPerformance
	if err := json.Unmarshal(raw, &stats); err != nil {
		return activity.DailyPerformance{}, false, persistErr("decode daily stats", err)
	}
	return stats, true, nil
}

// RemoveDailyStats drops the cached aggregate for date.
func (s *Store) RemoveDailyStats(date string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.deleteValue(statsKeyPref + date)
}

// LoadQueue reads the pending sync queue.
func (s *Store) LoadQueue() ([]activity.SyncQueueItem, error) {
	raw, ok, err := s.getValue(queueKey)
	if err != nil || !ok {
		return nil, err
	}
	var items []activity.SyncQueueItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, persistErr("decode sync queue", err)
	}
	return items, nil
}

// SaveQueue replaces the pending sync queue.
func (s *Store) SaveQueue(items []activity.SyncQueueItem) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if len(items) == 0 {
		return s.deleteValue(queueKey)
	}
	return s.setValue(queueKey, items)
}
