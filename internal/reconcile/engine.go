// Package reconcile implements the two-phase load/merge cycle that keeps
// the local cache and the remote store agreeing on what happened on each
// calendar day. Phase 1 renders instantly from the local cache; Phase 2
// fetches the remote view and merges it in under the richer-wins rule.
package reconcile

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
	"github.com/Codeur974/sentiers-974-sub000/internal/syncqueue"
)

const (
	remoteWindow = 30 * 24 * time.Hour
	fetchLimit   = 200
)

// ErrNoSession is returned when a POI is captured with no owning session.
var ErrNoSession = errors.New("no-session")

// LocalStore is the slice of the device cache the engine needs.
type LocalStore interface {
	Put(activity.PointOfInterest) error
	GetAll() []activity.PointOfInterest
	RemoveBatch(ids []string) error
	TryBeginLoad() bool
	EndLoad()
	GetDailyStats(date string) (activity.DailyPerformance, bool, error)
	PutDailyStats(date string, stats activity.DailyPerformance) error
}

// RemoteClient is the sync client surface the engine calls. The concrete
// implementation owns all network policy.
type RemoteClient interface {
	CreateSession(ctx context.Context, s activity.Session) (activity.Session, error)
	FetchSessionsInRange(ctx context.Context, from, to time.Time, limit int) ([]activity.Session, error)
	FetchDailyStats(ctx context.Context, date string) (activity.DailyPerformance, error)
	CreatePOI(ctx context.Context, sessionID string, poi activity.PointOfInterest, photo io.Reader, photoName string) (activity.PointOfInterest, error)
	FetchPOIs(ctx context.Context, userID string) ([]activity.PointOfInterest, error)
}

type State int

const (
	StateIdle State = iota
	StateLoadingLocal
	StateRenderedLocal
	StateLoadingRemote
	StateRenderedMerged
)

func (s State) String() string {
	switch s {
	case StateLoadingLocal:
		return "loading_local"
	case StateRenderedLocal:
		return "rendered_local"
	case StateLoadingRemote:
		return "loading_remote"
	case StateRenderedMerged:
		return "rendered_merged"
	default:
		return "idle"
	}
}

// Service is the reconciliation engine. It is constructed with injected
// store and client so tests can substitute either side.
type Service struct {
	store  LocalStore
	remote RemoteClient
	queue  *syncqueue.Queue

	userID   string
	deviceID string

	loc *time.Location
	now func() time.Time

	flight singleflight.Group

	mu            sync.RWMutex
	state         State
	feed          []activity.DayGroup
	generation    uint64
	activeSession string
}

func NewService(store LocalStore, remote RemoteClient, queue *syncqueue.Queue, userID, deviceID string) *Service {
	return &Service{
		store:    store,
		remote:   remote,
		queue:    queue,
		userID:   userID,
		deviceID: deviceID,
		loc:      time.Local,
		now:      time.Now,
		state:    StateIdle,
	}
}

// Feed returns the current best-known view. It is updated in place as
// Phase 2 completes.
func (s *Service) Feed() []activity.DayGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]activity.DayGroup, len(s.feed))
	copy(out, s.feed)
	return out
}

func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) IsSyncing() bool {
	st := s.State()
	return st == StateLoadingLocal || st == StateLoadingRemote
}

// PendingSync returns the number of queued mutations awaiting delivery.
func (s *Service) PendingSync() int {
	return s.queue.Pending()
}

// SetActiveSession records the session currently being tracked; POIs
// captured without an explicit session attach to it.
func (s *Service) SetActiveSession(id string) {
	s.mu.Lock()
	s.activeSession = id
	s.mu.Unlock()
}

func (s *Service) ActiveSession() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeSession
}

func (s *Service) setState(gen uint64, st State) {
	s.mu.Lock()
	if gen == s.generation {
		s.state = st
	}
	s.mu.Unlock()
}

// render publishes a view unless a newer cycle already rendered
// (last-writer-wins at the render boundary).
func (s *Service) render(gen uint64, feed []activity.DayGroup, st State) {
	s.mu.Lock()
	if gen == s.generation {
		s.feed = feed
		s.state = st
	}
	s.mu.Unlock()
}

// Refresh runs one full view-refresh cycle. A cycle already in flight
// turns this call into a no-op; the caller re-triggers on its next
// natural refresh tick.
func (s *Service) Refresh(ctx context.Context) error {
	if !s.store.TryBeginLoad() {
		return nil
	}
	defer s.store.EndLoad()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state = StateLoadingLocal
	s.mu.Unlock()

	local := s.phase1()
	s.render(gen, local, StateRenderedLocal)

	s.setState(gen, StateLoadingRemote)
	merged, err := s.phase2(ctx, local)
	if err != nil {
		// Degrade gracefully: the local-derived view stays rendered.
		s.setState(gen, StateRenderedLocal)
		log.Printf("remote phase failed, keeping local view: %v", err)
		return err
	}
	s.render(gen, merged, StateRenderedMerged)
	return nil
}

// phase1 builds the fast local view: cached POIs minus drafts, bucketed by
// day, with any cached day-performance aggregate attached.
func (s *Service) phase1() []activity.DayGroup {
	now := s.now()
	var items []activity.PhotoItem
	for _, p := range s.store.GetAll() {
		if p.Draft {
			continue
		}
		p.CreatedAt = normalizeStamp(p.CreatedAt, now, s.loc)
		items = append(items, poiPhotoItem(p))
	}

	sessionsFor := func(date string) []activity.SessionPerformance {
		stats, ok, err := s.store.GetDailyStats(date)
		if err != nil || !ok {
			return nil
		}
		return stats.SessionsList
	}
	return buildDayGroups(items, sessionsFor, nil, s.loc)
}

// phase2 fetches the rolling remote window, rebuilds the remote-side day
// set from the deduplicated photo pool, and merges it against the local
// view.
func (s *Service) phase2(ctx context.Context, local []activity.DayGroup) ([]activity.DayGroup, error) {
	now := s.now()
	sessions, err := s.remote.FetchSessionsInRange(ctx, now.Add(-remoteWindow), now, fetchLimit)
	if err != nil {
		return nil, err
	}

	var pool []activity.PhotoItem
	var remoteDates []string
	dateSeen := map[string]bool{}
	payloadPerf := map[string]map[string]activity.SessionPerformance{}

	for _, sess := range sessions {
		sess.CreatedAt = normalizeStamp(sess.CreatedAt, now, s.loc)
		date := DayKey(int64(sess.CreatedAt), s.loc)
		if !dateSeen[date] {
			dateSeen[date] = true
			remoteDates = append(remoteDates, date)
		}
		if payloadPerf[date] == nil {
			payloadPerf[date] = map[string]activity.SessionPerformance{}
		}
		payloadPerf[date][sess.ID] = activity.SessionPerformance{
			SessionID: sess.ID,
			Sport:     sess.Sport,
			Distance:  sess.Distance,
			Duration:  sess.Duration,
			Calories:  sess.Calories,
			Steps:     sess.Steps,
		}
		for _, ph := range sess.Photos {
			pool = append(pool, sessionPhotoItem(sess, ph, now, s.loc))
		}
	}

	// Remote POIs are a read-through cache: kept in memory, never written
	// to the persisted blob.
	if pois, err := s.remote.FetchPOIs(ctx, s.userID); err == nil {
		for _, p := range pois {
			p.CreatedAt = normalizeStamp(p.CreatedAt, now, s.loc)
			if err := s.store.Put(p); err != nil {
				log.Printf("cache remote poi %s: %v", p.ID, err)
			}
			pool = append(pool, poiPhotoItem(p))
		}
	} else {
		log.Printf("fetch remote pois: %v", err)
	}

	// Local contributions join the pool after the remote ones so the
	// deduplicated entry keeps the server URL while regaining the device
	// file URI.
	for _, day := range local {
		for _, g := range day.SessionGroups {
			pool = append(pool, g.Photos...)
		}
		pool = append(pool, day.OrphanPhotos...)
	}
	pool = dedupePhotos(pool)

	// A fresh aggregate is fetched for every day with either a local or a
	// remote contribution.
	dates := make([]string, 0, len(remoteDates)+len(local))
	dates = append(dates, remoteDates...)
	for _, day := range local {
		if !dateSeen[day.Date] {
			dateSeen[day.Date] = true
			dates = append(dates, day.Date)
		}
	}

	perfByDate := map[string][]activity.SessionPerformance{}
	for _, date := range dates {
		perfByDate[date] = s.dailySessions(ctx, date, payloadPerf[date])
	}

	remoteGroups := buildDayGroups(pool, func(date string) []activity.SessionPerformance {
		return perfByDate[date]
	}, remoteDates, s.loc)

	return mergeDays(local, remoteGroups), nil
}

// dailySessions resolves the session list for one day: the fresh remote
// aggregate when reachable (then cached locally), the local cache as
// fallback, unioned with sessions seen in the fetched payloads. Concurrent
// fetches for the same day share one in-flight call.
func (s *Service) dailySessions(ctx context.Context, date string, payload map[string]activity.SessionPerformance) []activity.SessionPerformance {
	var list []activity.SessionPerformance

	v, err, _ := s.flight.Do(date, func() (any, error) {
		return s.remote.FetchDailyStats(ctx, date)
	})
	if err == nil {
		stats := v.(activity.DailyPerformance)
		if stats.Date == "" {
			stats.Date = date
		}
		if putErr := s.store.PutDailyStats(date, stats); putErr != nil {
			log.Printf("cache daily stats %s: %v", date, putErr)
		}
		list = stats.SessionsList
	} else {
		log.Printf("fetch daily stats %s: %v", date, err)
		if cached, ok, cacheErr := s.store.GetDailyStats(date); cacheErr == nil && ok {
			list = cached.SessionsList
		}
	}

	known := map[string]bool{}
	for _, perf := range list {
		known[perf.SessionID] = true
	}
	for id, perf := range payload {
		if !known[id] {
			list = append(list, perf)
		}
	}
	return list
}

// CreatePOI writes the capture locally first, then makes a best-effort
// push to the remote store. A push failure leaves the local-origin entry
// in place for a later cycle to reconcile.
func (s *Service) CreatePOI(ctx context.Context, input activity.PointOfInterest, photo io.Reader, photoName string) (activity.PointOfInterest, error) {
	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = s.ActiveSession()
	}
	if sessionID == "" {
		return activity.PointOfInterest{}, ErrNoSession
	}
	input.SessionID = sessionID

	if err := input.Validate(); err != nil {
		return activity.PointOfInterest{}, err
	}

	now := s.now()
	input.ID = "local_" + uuid.NewString()
	input.Origin = activity.OriginLocal
	input.CreatedAt = normalizeStamp(input.CreatedAt, now, s.loc)

	if err := s.store.Put(input); err != nil {
		return activity.PointOfInterest{}, err
	}

	created, err := s.remote.CreatePOI(ctx, sessionID, input, photo, photoName)
	if err != nil {
		log.Printf("poi %s push deferred: %v", input.ID, err)
		return input, nil
	}

	// Confirmed round trip: the server copy is now authoritative. Replace
	// the local-origin entry with the server-assigned identity.
	created.SessionID = sessionID
	created.PhotoURI = input.PhotoURI
	created.Origin = activity.OriginRemote
	if err := s.store.RemoveBatch([]string{input.ID}); err != nil {
		return activity.PointOfInterest{}, err
	}
	if err := s.store.Put(created); err != nil {
		return activity.PointOfInterest{}, err
	}
	return created, nil
}

// SaveSession pushes a completed session; on failure the mutation is
// queued for an opportunistic replay (the server upserts by session id,
// so replay cannot duplicate).
func (s *Service) SaveSession(ctx context.Context, sess activity.Session) (activity.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.CreatedAt = normalizeStamp(sess.CreatedAt, s.now(), s.loc)
	if sess.Status == "" {
		sess.Status = activity.StatusCompleted
	}

	created, err := s.remote.CreateSession(ctx, sess)
	if err != nil {
		log.Printf("session %s save failed, queueing: %v", sess.ID, err)
		if qErr := s.queue.Enqueue(activity.SyncQueueItem{
			Session:  &sess,
			UserID:   s.userID,
			DeviceID: s.deviceID,
		}); qErr != nil {
			return activity.Session{}, qErr
		}
		return sess, nil
	}
	return created, nil
}

// DrainQueue replays pending mutations.
func (s *Service) DrainQueue(ctx context.Context) (succeeded, pending int, err error) {
	return s.queue.Drain(ctx, s.remote)
}
