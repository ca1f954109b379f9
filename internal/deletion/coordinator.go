// Package deletion orchestrates multi-entity deletes across the local
// cache and the remote store, tolerating either side being unreachable.
// Local removal is never blocked on the network: the user already
// confirmed the delete.
package deletion

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
	"github.com/Codeur974/sentiers-974-sub000/internal/reconcile"
)

// ErrRemotePhotoDelete signals an unsupported operation, distinct from a
// generic failure: a remote-origin photo cannot be deleted individually,
// the caller must delete the owning session instead.
var ErrRemotePhotoDelete = errors.New("remote photo delete unsupported: delete the owning session")

// LocalStore is the cache surface the coordinator mutates.
type LocalStore interface {
	Get(id string) (activity.PointOfInterest, bool)
	GetAll() []activity.PointOfInterest
	ListBySession(sessionID string) []activity.PointOfInterest
	RemoveBatch(ids []string) error
	GetDailyStats(date string) (activity.DailyPerformance, bool, error)
	PutDailyStats(date string, stats activity.DailyPerformance) error
	RemoveDailyStats(date string) error
}

// RemoteClient is the sync client surface the coordinator calls.
type RemoteClient interface {
	DeleteSession(ctx context.Context, id string) error
	DeletePOI(ctx context.Context, id string) error
	FetchSessionsInRange(ctx context.Context, from, to time.Time, limit int) ([]activity.Session, error)
}

// Report summarizes a batch delete: per-item failures are collected, never
// rolled back (local removal already happened).
type Report struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    []string `json:"failed,omitempty"`
}

type Coordinator struct {
	store  LocalStore
	remote RemoteClient
	loc    *time.Location
	now    func() time.Time
}

// fireAndForget runs remote cleanup off the caller's path.
var fireAndForget = func(fn func()) { go fn() }

func NewCoordinator(store LocalStore, remote RemoteClient) *Coordinator {
	return &Coordinator{store: store, remote: remote, loc: time.Local, now: time.Now}
}

// DeletePhoto removes a single photo. Deleting an id that is already gone
// is a no-op, not an error.
func (c *Coordinator) DeletePhoto(ctx context.Context, id string) error {
	p, ok := c.store.Get(id)
	if !ok {
		return nil
	}
	if p.Origin == activity.OriginRemote {
		return ErrRemotePhotoDelete
	}

	if err := c.store.RemoveBatch([]string{id}); err != nil {
		return err
	}
	removeLocalFile(p.PhotoURI)
	return nil
}

// DeleteSession removes a session everywhere: all local POIs related to
// it in one batch, the session's sub-record in any cached day aggregate,
// then a best-effort remote delete off the request path.
func (c *Coordinator) DeleteSession(ctx context.Context, id string) error {
	pois := c.store.ListBySession(id)
	ids := make([]string, 0, len(pois))
	dates := map[string]bool{}
	for _, p := range pois {
		ids = append(ids, p.ID)
		dates[reconcile.DayKey(int64(p.CreatedAt), c.loc)] = true
		removeLocalFile(p.PhotoURI)
	}
	if err := c.store.RemoveBatch(ids); err != nil {
		return err
	}

	for date := range dates {
		c.dropSessionFromStats(date, id)
	}

	fireAndForget(func() {
		if err := c.remote.DeleteSession(context.Background(), id); err != nil {
			log.Printf("remote session delete %s: %v", id, err)
		}
	})
	return nil
}

// DeleteDay removes every trace of one local calendar day. Confirmation
// is the caller's concern; the coordinator asks no further questions.
// Local state is updated exactly once; each remote delete is attempted
// individually and one failure never aborts the rest.
func (c *Coordinator) DeleteDay(ctx context.Context, date string) (Report, error) {
	var report Report

	var ids []string
	var remotePOIs []string
	for _, p := range c.store.GetAll() {
		if reconcile.DayKey(int64(p.CreatedAt), c.loc) != date {
			continue
		}
		ids = append(ids, p.ID)
		removeLocalFile(p.PhotoURI)
		if p.Origin == activity.OriginRemote {
			remotePOIs = append(remotePOIs, p.ID)
		}
	}
	if err := c.store.RemoveBatch(ids); err != nil {
		return report, err
	}

	for _, id := range remotePOIs {
		report.Attempted++
		if err := c.remote.DeletePOI(ctx, id); err != nil {
			log.Printf("remote poi delete %s: %v", id, err)
			report.Failed = append(report.Failed, id)
			continue
		}
		report.Succeeded++
	}

	start, end, ok := dayBounds(date, c.loc)
	if !ok {
		return report, errors.New("invalid date: " + date)
	}
	sessions, err := c.remote.FetchSessionsInRange(ctx, start, end, 0)
	if err != nil {
		log.Printf("fetch sessions for day delete %s: %v", date, err)
	}
	for _, sess := range sessions {
		report.Attempted++
		if err := c.remote.DeleteSession(ctx, sess.ID); err != nil {
			log.Printf("remote session delete %s: %v", sess.ID, err)
			report.Failed = append(report.Failed, sess.ID)
			continue
		}
		report.Succeeded++
	}

	if err := c.store.RemoveDailyStats(date); err != nil {
		return report, err
	}
	return report, nil
}

func (c *Coordinator) dropSessionFromStats(date, sessionID string) {
	stats, ok, err := c.store.GetDailyStats(date)
	if err != nil || !ok {
		return
	}
	kept := stats.SessionsList[:0]
	for _, perf := range stats.SessionsList {
		if perf.SessionID != sessionID {
			kept = append(kept, perf)
		}
	}
	if len(kept) == len(stats.SessionsList) {
		return
	}
	stats.SessionsList = kept
	if err := c.store.PutDailyStats(date, stats); err != nil {
		log.Printf("update daily stats %s: %v", date, err)
	}
}

func dayBounds(date string, loc *time.Location) (time.Time, time.Time, bool) {
	t, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return t, t.AddDate(0, 0, 1), true
}

// removeLocalFile cleans up a device-side photo file; failures only log.
func removeLocalFile(uri string) {
	if uri == "" {
		return
	}
	path := strings.TrimPrefix(uri, "file://")
	if strings.Contains(path, "://") {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("remove photo file %s: %v", path, err)
	}
}
