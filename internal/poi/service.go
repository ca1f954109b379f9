package poi

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
	"github.com/Codeur974/sentiers-974-sub000/internal/db"
	"github.com/Codeur974/sentiers-974-sub000/internal/shared/geo"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Create stores a POI under its owning session and returns it with the
// server-assigned id. When the device sent no distance offset, it is
// derived from the previous POI of the same session.
func (s *Service) Create(ctx context.Context, userID, sessionID string, input activity.PointOfInterest) (activity.PointOfInterest, error) {
	if err := input.Validate(); err != nil {
		return activity.PointOfInterest{}, err
	}

	input.ID = uuid.NewString()
	input.SessionID = sessionID
	if input.CreatedAt == 0 {
		input.CreatedAt = activity.Timestamp(time.Now().UnixMilli())
	}

	if input.Distance == 0 {
		var lastLat, lastLng, lastDistance float64
		err := s.db.QueryRow(ctx, `
			SELECT latitude, longitude, distance
			FROM pois
			WHERE session_id=$1
			ORDER BY created_at DESC
			LIMIT 1
		`, sessionID).Scan(&lastLat, &lastLng, &lastDistance)
		if err == nil && (lastLat != 0 || lastLng != 0) {
			input.Distance = lastDistance + geo.HaversineKm(lastLat, lastLng, input.Latitude, input.Longitude)*1000
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO pois (id, user_id, session_id, title, note, latitude, longitude, altitude, distance, time_offset, photo_url, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, input.ID, userID, sessionID, input.Title, input.Note, input.Latitude, input.Longitude,
		input.Altitude, input.Distance, input.Time, input.PhotoURL, int64(input.CreatedAt))
	if err != nil {
		return activity.PointOfInterest{}, err
	}
	return input, nil
}

// SavePhoto records an uploaded photo object and returns its URL.
func (s *Service) SavePhoto(ctx context.Context, userID, fileName string) (string, error) {
	id := uuid.NewString()
	url := "https://storage.example/" + id + "/" + fileName
	_, err := s.db.Exec(ctx, `
		INSERT INTO storage_objects (id, user_id, url, kind)
		VALUES ($1,$2,$3,$4)
	`, id, userID, url, "poi-photo")
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]activity.PointOfInterest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, title, note, latitude, longitude, altitude, distance, time_offset, photo_url, created_at
		FROM pois
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pois []activity.PointOfInterest
	for rows.Next() {
		var p activity.PointOfInterest
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Title, &p.Note, &p.Latitude, &p.Longitude,
			&p.Altitude, &p.Distance, &p.Time, &p.PhotoURL, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = activity.Timestamp(createdAt)
		pois = append(pois, p)
	}
	return pois, nil
}

// Delete reports whether a row existed; deleting an absent id is not an
// error.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM pois WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
