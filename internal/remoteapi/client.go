// Package remoteapi is the only place network policy lives: bounded
// timeouts, retry with backoff, and the transient/rejected error split.
// Every other component treats a remote call as "maybe it worked".
package remoteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
)

const (
	metadataTimeout = 5 * time.Second
	uploadTimeout   = 60 * time.Second
)

type Client struct {
	baseURL  string
	token    string
	deviceID string
	http     *http.Client
	retry    RetryPolicy
}

func NewClient(baseURL, token, deviceID string) *Client {
	return &Client{
		baseURL:  baseURL,
		token:    token,
		deviceID: deviceID,
		http:     &http.Client{},
		retry:    defaultRetry,
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, timeout time.Duration, body io.Reader, contentType string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &ClientError{Op: op, Status: 0, Message: err.Error()}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return &TransientError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ClientError{Op: op, Status: resp.StatusCode, Message: string(msg)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &TransientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

// CreateSession upserts a session by its client-generated id. Not retried:
// the sync queue owns replay for failed writes.
func (c *Client) CreateSession(ctx context.Context, s activity.Session) (activity.Session, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return activity.Session{}, &ClientError{Op: "create session", Message: err.Error()}
	}
	var created activity.Session
	if err := c.do(ctx, "create session", http.MethodPost, "/sessions", metadataTimeout, bytes.NewReader(payload), "application/json", &created); err != nil {
		return activity.Session{}, err
	}
	return created, nil
}

// DeleteSession is idempotent: a 404 means already deleted and counts as
// success.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	err := c.do(ctx, "delete session", http.MethodDelete, "/sessions/"+url.PathEscape(id), metadataTimeout, nil, "", nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// FetchSessionsInRange returns sessions whose createdAt falls in [from, to).
func (c *Client) FetchSessionsInRange(ctx context.Context, from, to time.Time, limit int) ([]activity.Session, error) {
	q := url.Values{}
	q.Set("dateFrom", from.UTC().Format(time.RFC3339))
	q.Set("dateTo", to.UTC().Format(time.RFC3339))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var sessions []activity.Session
	err := withRetry(ctx, c.retry, IsTransient, func(ctx context.Context) error {
		sessions = nil
		return c.do(ctx, "fetch sessions", http.MethodGet, "/sessions?"+q.Encode(), metadataTimeout, nil, "", &sessions)
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// FetchDailyStats returns the per-day aggregate for a YYYY-MM-DD date.
func (c *Client) FetchDailyStats(ctx context.Context, date string) (activity.DailyPerformance, error) {
	var stats activity.DailyPerformance
	err := withRetry(ctx, c.retry, IsTransient, func(ctx context.Context) error {
		stats = activity.DailyPerformance{}
		return c.do(ctx, "fetch daily stats", http.MethodGet, "/sessions/stats/daily?date="+url.QueryEscape(date), metadataTimeout, nil, "", &stats)
	})
	if err != nil {
		return activity.DailyPerformance{}, err
	}
	return stats, nil
}

// CreatePOI uploads a POI (and optionally its photo) under the owning
// session. The server answers with its own id and photo URL.
func (c *Client) CreatePOI(ctx context.Context, sessionID string, poi activity.PointOfInterest, photo io.Reader, photoName string) (activity.PointOfInterest, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("title", poi.Title)
	_ = w.WriteField("note", poi.Note)
	_ = w.WriteField("latitude", strconv.FormatFloat(poi.Latitude, 'f', -1, 64))
	_ = w.WriteField("longitude", strconv.FormatFloat(poi.Longitude, 'f', -1, 64))
	_ = w.WriteField("altitude", strconv.FormatFloat(poi.Altitude, 'f', -1, 64))
	_ = w.WriteField("distance", strconv.FormatFloat(poi.Distance, 'f', -1, 64))
	_ = w.WriteField("time", strconv.FormatInt(poi.Time, 10))
	_ = w.WriteField("created_at", strconv.FormatInt(int64(poi.CreatedAt), 10))
	if photo != nil {
		part, err := w.CreateFormFile("photo", photoName)
		if err != nil {
			return activity.PointOfInterest{}, &ClientError{Op: "create poi", Message: err.Error()}
		}
		if _, err := io.Copy(part, photo); err != nil {
			return activity.PointOfInterest{}, &ClientError{Op: "create poi", Message: err.Error()}
		}
	}
	if err := w.Close(); err != nil {
		return activity.PointOfInterest{}, &ClientError{Op: "create poi", Message: err.Error()}
	}

	var created activity.PointOfInterest
	path := "/sessions/" + url.PathEscape(sessionID) + "/poi"
	if err := c.do(ctx, "create poi", http.MethodPost, path, uploadTimeout, &buf, w.FormDataContentType(), &created); err != nil {
		return activity.PointOfInterest{}, err
	}
	created.Origin = activity.OriginRemote
	return created, nil
}

// DeletePOI is idempotent like DeleteSession.
func (c *Client) DeletePOI(ctx context.Context, id string) error {
	err := c.do(ctx, "delete poi", http.MethodDelete, "/pointofinterests/"+url.PathEscape(id), metadataTimeout, nil, "", nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// FetchPOIs lists the user's POIs from the remote store.
func (c *Client) FetchPOIs(ctx context.Context, userID string) ([]activity.PointOfInterest, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	var pois []activity.PointOfInterest
	err := withRetry(ctx, c.retry, IsTransient, func(ctx context.Context) error {
		pois = nil
		return c.do(ctx, "fetch pois", http.MethodGet, "/pointofinterests?"+q.Encode(), metadataTimeout, nil, "", &pois)
	})
	if err != nil {
		return nil, err
	}
	for i := range pois {
		pois[i].Origin = activity.OriginRemote
	}
	return pois, nil
}

func isNotFound(err error) bool {
	ce, ok := err.(*ClientError)
	return ok && ce.Status == http.StatusNotFound
}
