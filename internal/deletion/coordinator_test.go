package deletion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
	"github.com/Codeur974/sentiers-974-sub000/internal/reconcile"
)

type fakeStore struct {
	pois         map[string]activity.PointOfInterest
	stats        map[string]activity.DailyPerformance
	removed      [][]string
	statsDropped []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pois:  map[string]activity.PointOfInterest{},
		stats: map[string]activity.DailyPerformance{},
	}
}

func (f *fakeStore) Get(id string) (activity.PointOfInterest, bool) {
	p, ok := f.pois[id]
	return p, ok
}

func (f *fakeStore) GetAll() []activity.PointOfInterest {
	out := make([]activity.PointOfInterest, 0, len(f.pois))
	for _, p := range f.pois {
		out = append(out, p)
	}
	return out
}

func (f *fakeStore) ListBySession(sessionID string) []activity.PointOfInterest {
	var out []activity.PointOfInterest
	for _, p := range f.pois {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeStore) RemoveBatch(ids []string) error {
	f.removed = append(f.removed, ids)
	for _, id := range ids {
		delete(f.pois, id)
	}
	return nil
}

func (f *fakeStore) GetDailyStats(date string) (activity.DailyPerformance, bool, error) {
	s, ok := f.stats[date]
	return s, ok, nil
}

func (f *fakeStore) PutDailyStats(date string, stats activity.DailyPerformance) error {
	f.stats[date] = stats
	return nil
}

func (f *fakeStore) RemoveDailyStats(date string) error {
	f.statsDropped = append(f.statsDropped, date)
	delete(f.stats, date)
	return nil
}

type fakeRemote struct {
	deletedSessions []string
	deletedPOIs     []string
	sessions        []activity.Session
	sessionErr      map[string]error
	poiErr          map[string]error
	fetchErr        error
}

func (f *fakeRemote) DeleteSession(ctx context.Context, id string) error {
	if err := f.sessionErr[id]; err != nil {
		return err
	}
	f.deletedSessions = append(f.deletedSessions, id)
	return nil
}

func (f *fakeRemote) DeletePOI(ctx context.Context, id string) error {
	if err := f.poiErr[id]; err != nil {
		return err
	}
	f.deletedPOIs = append(f.deletedPOIs, id)
	return nil
}

func (f *fakeRemote) FetchSessionsInRange(ctx context.Context, from, to time.Time, limit int) ([]activity.Session, error) {
	return f.sessions, f.fetchErr
}

func runSynchronously(t *testing.T) {
	t.Helper()
	orig := fireAndForget
	fireAndForget = func(fn func()) { fn() }
	t.Cleanup(func() { fireAndForget = orig })
}

func newTestCoordinator(store *fakeStore, remote *fakeRemote) *Coordinator {
	c := NewCoordinator(store, remote)
	c.loc = time.UTC
	c.now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	return c
}

func dayMillis(day string, hour int) activity.Timestamp {
	t, _ := time.ParseInLocation("2006-01-02", day, time.UTC)
	return activity.Timestamp(t.Add(time.Duration(hour) * time.Hour).UnixMilli())
}

func TestDeletePhotoMissingIsNoOp(t *testing.T) {
	c := newTestCoordinator(newFakeStore(), &fakeRemote{})
	if err := c.DeletePhoto(context.Background(), "never-existed"); err != nil {
		t.Fatalf("missing id must be a no-op, got %v", err)
	}
}

func TestDeletePhotoIdempotent(t *testing.T) {
	store := newFakeStore()
	store.pois["p1"] = activity.PointOfInterest{ID: "p1", Origin: activity.OriginLocal}
	c := newTestCoordinator(store, &fakeRemote{})

	if err := c.DeletePhoto(context.Background(), "p1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := c.DeletePhoto(context.Background(), "p1"); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
}

func TestDeletePhotoRemoteOriginRefused(t *testing.T) {
	store := newFakeStore()
	store.pois["srv-1"] = activity.PointOfInterest{ID: "srv-1", Origin: activity.OriginRemote}
	c := newTestCoordinator(store, &fakeRemote{})

	err := c.DeletePhoto(context.Background(), "srv-1")
	if !errors.Is(err, ErrRemotePhotoDelete) {
		t.Fatalf("expected ErrRemotePhotoDelete, got %v", err)
	}
	if _, ok := store.pois["srv-1"]; !ok {
		t.Fatalf("refused delete must not touch the cache")
	}
}

func TestDeletePhotoRemovesLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	store := newFakeStore()
	store.pois["p1"] = activity.PointOfInterest{ID: "p1", Origin: activity.OriginLocal, PhotoURI: "file://" + path}
	c := newTestCoordinator(store, &fakeRemote{})

	if err := c.DeletePhoto(context.Background(), "p1"); err != nil {
		t.Fatalf("delete photo: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("device file must be removed")
	}
}

func TestDeleteSessionCascade(t *testing.T) {
	runSynchronously(t)

	store := newFakeStore()
	store.pois["p1"] = activity.PointOfInterest{ID: "p1", SessionID: "s1", CreatedAt: dayMillis("2024-06-15", 9), Origin: activity.OriginLocal}
	store.pois["p2"] = activity.PointOfInterest{ID: "p2", SessionID: "s1", CreatedAt: dayMillis("2024-06-15", 10), Origin: activity.OriginLocal}
	store.pois["other"] = activity.PointOfInterest{ID: "other", SessionID: "s2", CreatedAt: dayMillis("2024-06-15", 11), Origin: activity.OriginLocal}
	store.stats["2024-06-15"] = activity.DailyPerformance{
		Date: "2024-06-15",
		SessionsList: []activity.SessionPerformance{
			{SessionID: "s1"},
			{SessionID: "s2"},
		},
	}

	remote := &fakeRemote{}
	c := newTestCoordinator(store, remote)
	if err := c.DeleteSession(context.Background(), "s1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	if _, ok := store.pois["other"]; !ok {
		t.Fatalf("unrelated poi must survive")
	}
	if len(store.pois) != 1 {
		t.Fatalf("s1 pois must be gone, got %+v", store.pois)
	}
	if len(store.removed) != 1 || len(store.removed[0]) != 2 {
		t.Fatalf("local removal must be one batch, got %+v", store.removed)
	}
	if got := store.stats["2024-06-15"].SessionsList; len(got) != 1 || got[0].SessionID != "s2" {
		t.Fatalf("s1 must leave the day aggregate, got %+v", got)
	}
	if len(remote.deletedSessions) != 1 || remote.deletedSessions[0] != "s1" {
		t.Fatalf("remote delete must fire, got %+v", remote.deletedSessions)
	}
}

func TestDeleteSessionRemoteFailureDoesNotBlock(t *testing.T) {
	runSynchronously(t)

	store := newFakeStore()
	store.pois["p1"] = activity.PointOfInterest{ID: "p1", SessionID: "s1", CreatedAt: dayMillis("2024-06-15", 9), Origin: activity.OriginLocal}
	remote := &fakeRemote{sessionErr: map[string]error{"s1": errors.New("unreachable")}}
	c := newTestCoordinator(store, remote)

	if err := c.DeleteSession(context.Background(), "s1"); err != nil {
		t.Fatalf("local delete must succeed regardless of remote, got %v", err)
	}
	if len(store.pois) != 0 {
		t.Fatalf("local pois must be removed")
	}
}

func TestDeleteDay(t *testing.T) {
	store := newFakeStore()
	store.pois["local-1"] = activity.PointOfInterest{ID: "local-1", CreatedAt: dayMillis("2024-06-15", 9), Origin: activity.OriginLocal}
	store.pois["srv-1"] = activity.PointOfInterest{ID: "srv-1", CreatedAt: dayMillis("2024-06-15", 10), Origin: activity.OriginRemote}
	store.pois["keep"] = activity.PointOfInterest{ID: "keep", CreatedAt: dayMillis("2024-06-14", 10), Origin: activity.OriginLocal}
	store.stats["2024-06-15"] = activity.DailyPerformance{Date: "2024-06-15"}

	remote := &fakeRemote{
		sessions: []activity.Session{{ID: "s1"}, {ID: "s2"}},
	}
	c := newTestCoordinator(store, remote)

	report, err := c.DeleteDay(context.Background(), "2024-06-15")
	if err != nil {
		t.Fatalf("delete day: %v", err)
	}

	if _, ok := store.pois["keep"]; !ok {
		t.Fatalf("other days must be untouched")
	}
	if len(store.pois) != 1 {
		t.Fatalf("day pois must be gone, got %+v", store.pois)
	}
	if len(store.removed) != 1 {
		t.Fatalf("local state must change exactly once, got %d batches", len(store.removed))
	}
	if len(remote.deletedPOIs) != 1 || remote.deletedPOIs[0] != "srv-1" {
		t.Fatalf("only remote-origin pois get a remote delete, got %+v", remote.deletedPOIs)
	}
	if len(remote.deletedSessions) != 2 {
		t.Fatalf("both day sessions must be deleted remotely, got %+v", remote.deletedSessions)
	}
	if report.Attempted != 3 || report.Succeeded != 3 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(store.statsDropped) != 1 || store.statsDropped[0] != "2024-06-15" {
		t.Fatalf("day aggregate must be dropped, got %+v", store.statsDropped)
	}
}

func TestDeleteDayPartialRemoteFailure(t *testing.T) {
	store := newFakeStore()
	store.pois["srv-1"] = activity.PointOfInterest{ID: "srv-1", CreatedAt: dayMillis("2024-06-15", 9), Origin: activity.OriginRemote}

	remote := &fakeRemote{
		sessions:   []activity.Session{{ID: "s1"}, {ID: "s2"}},
		sessionErr: map[string]error{"s1": errors.New("unreachable")},
		poiErr:     map[string]error{"srv-1": errors.New("unreachable")},
	}
	c := newTestCoordinator(store, remote)

	report, err := c.DeleteDay(context.Background(), "2024-06-15")
	if err != nil {
		t.Fatalf("partial failures must not abort the day delete: %v", err)
	}
	if report.Attempted != 3 || report.Succeeded != 1 || len(report.Failed) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(remote.deletedSessions) != 1 || remote.deletedSessions[0] != "s2" {
		t.Fatalf("one failure must not stop the others, got %+v", remote.deletedSessions)
	}
	if len(store.pois) != 0 {
		t.Fatalf("local removal already happened and stays")
	}
}

func TestDeleteDayInvalidDate(t *testing.T) {
	c := newTestCoordinator(newFakeStore(), &fakeRemote{})
	if _, err := c.DeleteDay(context.Background(), "le quinze juin"); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestDeleteDayFetchFailureStillCleansLocally(t *testing.T) {
	store := newFakeStore()
	store.pois["local-1"] = activity.PointOfInterest{ID: "local-1", CreatedAt: dayMillis("2024-06-15", 9), Origin: activity.OriginLocal}
	store.stats["2024-06-15"] = activity.DailyPerformance{Date: "2024-06-15"}

	remote := &fakeRemote{fetchErr: errors.New("unreachable")}
	c := newTestCoordinator(store, remote)

	report, err := c.DeleteDay(context.Background(), "2024-06-15")
	if err != nil {
		t.Fatalf("delete day: %v", err)
	}
	if len(store.pois) != 0 || len(store.statsDropped) != 1 {
		t.Fatalf("local cleanup must complete offline")
	}
	if report.Attempted != 0 {
		t.Fatalf("nothing remote was attempted, got %+v", report)
	}
}

func TestDayBounds(t *testing.T) {
	start, end, ok := dayBounds("2024-06-15", time.UTC)
	if !ok {
		t.Fatalf("expected valid bounds")
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("expected a one-day window, got %v", end.Sub(start))
	}
	if reconcile.DayKey(start.UnixMilli(), time.UTC) != "2024-06-15" {
		t.Fatalf("window must start on the requested day")
	}
}
