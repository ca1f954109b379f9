package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
	"github.com/Codeur974/sentiers-974-sub000/internal/db"
	"github.com/Codeur974/sentiers-974-sub000/internal/stream"
)

const statsCacheTTL = 5 * time.Minute

type Service struct {
	db    db.Querier
	cache *redis.Client
	hub   *stream.Hub
}

func NewService(db db.Querier, cache *redis.Client, hub *stream.Hub) *Service {
	return &Service{db: db, cache: cache, hub: hub}
}

// Upsert saves a session keyed by its client-generated id. Replaying the
// same payload is safe: the id is the idempotency key.
func (s *Service) Upsert(ctx context.Context, input activity.Session) (activity.Session, error) {
	if input.ID == "" {
		input.ID = uuid.NewString()
	}
	if input.CreatedAt == 0 {
		input.CreatedAt = activity.Timestamp(time.Now().UnixMilli())
	}
	if input.Status == "" {
		input.Status = activity.StatusCompleted
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, sport_name, sport_emoji, distance, duration, calories, avg_speed, max_speed, steps, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE
		SET sport_name=EXCLUDED.sport_name, sport_emoji=EXCLUDED.sport_emoji,
		    distance=EXCLUDED.distance, duration=EXCLUDED.duration,
		    calories=EXCLUDED.calories, avg_speed=EXCLUDED.avg_speed,
		    max_speed=EXCLUDED.max_speed, steps=EXCLUDED.steps,
		    status=EXCLUDED.status
	`, input.ID, input.UserID, input.Sport.Name, input.Sport.Emoji, input.Distance, input.Duration,
		input.Calories, input.AvgSpeed, input.MaxSpeed, input.Steps, input.Status, int64(input.CreatedAt))
	if err != nil {
		return activity.Session{}, err
	}

	for _, ph := range input.Photos {
		id := ph.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := s.db.Exec(ctx, `
			INSERT INTO session_photos (id, session_id, url, taken_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (id) DO UPDATE SET url=EXCLUDED.url, taken_at=EXCLUDED.taken_at
		`, id, input.ID, ph.URL, int64(ph.TakenAt))
		if err != nil {
			return activity.Session{}, err
		}
	}

	s.invalidateStats(ctx, input.UserID, int64(input.CreatedAt))
	s.notify(input.UserID, "session-upserted", input.ID)
	return input, nil
}

// Range returns sessions with createdAt in [from, to), embedded photos
// included.
func (s *Service) Range(ctx context.Context, userID string, from, to int64, limit int) ([]activity.Session, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, sport_name, sport_emoji, distance, duration, calories, avg_speed, max_speed, steps, status, created_at
		FROM sessions
		WHERE user_id=$1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, userID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []activity.Session
	for rows.Next() {
		var sess activity.Session
		var createdAt int64
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Sport.Name, &sess.Sport.Emoji, &sess.Distance,
			&sess.Duration, &sess.Calories, &sess.AvgSpeed, &sess.MaxSpeed, &sess.Steps, &sess.Status, &createdAt); err != nil {
			return nil, err
		}
		sess.CreatedAt = activity.Timestamp(createdAt)
		sessions = append(sessions, sess)
	}

	for i := range sessions {
		photos, err := s.photos(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].Photos = photos
	}
	return sessions, nil
}

func (s *Service) photos(ctx context.Context, sessionID string) ([]activity.Photo, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, url, taken_at FROM session_photos WHERE session_id=$1 ORDER BY taken_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []activity.Photo
	for rows.Next() {
		var ph activity.Photo
		var takenAt int64
		if err := rows.Scan(&ph.ID, &ph.URL, &takenAt); err != nil {
			return nil, err
		}
		ph.TakenAt = activity.Timestamp(takenAt)
		photos = append(photos, ph)
	}
	return photos, nil
}

// Delete removes a session and its embedded photos. It reports whether a
// row existed; an absent id is not an error.
func (s *Service) Delete(ctx context.Context, userID, id string) (bool, error) {
	var createdAt int64
	err := s.db.QueryRow(ctx, `SELECT created_at FROM sessions WHERE id=$1`, id).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM session_photos WHERE session_id=$1`, id); err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return false, err
	}

	s.invalidateStats(ctx, userID, createdAt)
	s.notify(userID, "session-deleted", id)
	return tag.RowsAffected() > 0, nil
}

// DailyStats aggregates one calendar day, cached in redis under
// daily_stats_<date> per user.
func (s *Service) DailyStats(ctx context.Context, userID, date string) (activity.DailyPerformance, error) {
	key := statsKey(userID, date)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
			var stats activity.DailyPerformance
			if json.Unmarshal([]byte(raw), &stats) == nil {
				return stats, nil
			}
		}
	}

	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return activity.DailyPerformance{}, fmt.Errorf("invalid date %q", date)
	}
	from := day.UnixMilli()
	to := day.AddDate(0, 0, 1).UnixMilli()

	rows, err := s.db.Query(ctx, `
		SELECT id, sport_name, sport_emoji, distance, duration, calories, steps
		FROM sessions
		WHERE user_id=$1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at
	`, userID, from, to)
	if err != nil {
		return activity.DailyPerformance{}, err
	}
	defer rows.Close()

	stats := activity.DailyPerformance{Date: date}
	for rows.Next() {
		var perf activity.SessionPerformance
		if err := rows.Scan(&perf.SessionID, &perf.Sport.Name, &perf.Sport.Emoji, &perf.Distance,
			&perf.Duration, &perf.Calories, &perf.Steps); err != nil {
			return activity.DailyPerformance{}, err
		}
		stats.TotalDistance += perf.Distance
		stats.TotalDuration += perf.Duration
		stats.TotalCalories += perf.Calories
		stats.SessionsList = append(stats.SessionsList, perf)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			s.cache.Set(ctx, key, raw, statsCacheTTL)
		}
	}
	return stats, nil
}

func (s *Service) invalidateStats(ctx context.Context, userID string, createdAt int64) {
	if s.cache == nil {
		return
	}
	date := time.UnixMilli(createdAt).UTC().Format("2006-01-02")
	s.cache.Del(ctx, statsKey(userID, date))
}

func (s *Service) notify(userID, kind, id string) {
	if s.hub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"type": kind, "id": id})
	s.hub.Broadcast(userID, payload)
}

func statsKey(userID, date string) string {
	return "daily_stats_" + date + ":" + userID
}
