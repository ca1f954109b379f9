// Package syncqueue is the durable outbox for mutations that could not
// reach the remote store. Items are replayed opportunistically and removed
// only after a confirmed acknowledgement; the server upserts sessions by
// id, so replaying an already-applied mutation is safe.
package syncqueue

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
)

// QueueStore persists the pending item list.
type QueueStore interface {
	LoadQueue() ([]activity.SyncQueueItem, error)
	SaveQueue([]activity.SyncQueueItem) error
}

// RemoteClient is the subset of the sync client a drain needs.
type RemoteClient interface {
	CreateSession(ctx context.Context, s activity.Session) (activity.Session, error)
	CreatePOI(ctx context.Context, sessionID string, poi activity.PointOfInterest, photo io.Reader, photoName string) (activity.PointOfInterest, error)
}

type Queue struct {
	store QueueStore

	mu       sync.Mutex
	items    []activity.SyncQueueItem
	draining bool
}

// Open loads the persisted queue.
func Open(store QueueStore) (*Queue, error) {
	items, err := store.LoadQueue()
	if err != nil {
		return nil, err
	}
	return &Queue{store: store, items: items}, nil
}

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Enqueue snapshots a failed mutation. The item survives restarts.
func (q *Queue) Enqueue(item activity.SyncQueueItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.QueuedAt == 0 {
		item.QueuedAt = time.Now().UnixMilli()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return q.store.SaveQueue(q.items)
}

// Drain replays every pending item against the remote store. Failures stay
// queued; the persisted blob is rewritten once at the end. The replay runs
// off the queue lock, so enqueues keep landing while the network is slow;
// a Drain that overlaps a running one returns immediately with zero work.
func (q *Queue) Drain(ctx context.Context, client RemoteClient) (succeeded, pending int, err error) {
	q.mu.Lock()
	if q.draining {
		pending = len(q.items)
		q.mu.Unlock()
		return 0, pending, nil
	}
	q.draining = true
	snapshot := make([]activity.SyncQueueItem, len(q.items))
	copy(snapshot, q.items)
	q.mu.Unlock()

	failed := map[string]bool{}
	for _, item := range snapshot {
		if replayErr := replay(ctx, client, item); replayErr != nil {
			log.Printf("sync queue replay %s: %v", item.ID, replayErr)
			failed[item.ID] = true
			continue
		}
		succeeded++
	}
	drained := map[string]bool{}
	for _, item := range snapshot {
		if !failed[item.ID] {
			drained[item.ID] = true
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.draining = false

	var still []activity.SyncQueueItem
	for _, item := range q.items {
		if drained[item.ID] {
			continue
		}
		if failed[item.ID] {
			item.Attempts++
		}
		still = append(still, item)
	}
	q.items = still
	if err := q.store.SaveQueue(q.items); err != nil {
		return succeeded, len(q.items), err
	}
	return succeeded, len(q.items), nil
}

func replay(ctx context.Context, client RemoteClient, item activity.SyncQueueItem) error {
	switch {
	case item.Session != nil:
		_, err := client.CreateSession(ctx, *item.Session)
		return err
	case item.POI != nil:
		_, err := client.CreatePOI(ctx, item.POI.SessionID, *item.POI, nil, "")
		return err
	default:
		// Nothing to replay; drop the malformed item.
		return nil
	}
}
