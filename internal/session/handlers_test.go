package session

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
)

func testApp(t *testing.T, mock pgxmock.PgxPoolIface) *fiber.App {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), NewService(mock, nil, nil), func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	})
	return app
}

func TestSessionHandlersUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("client-1", "user-1", "Course", "", 5.0, int64(0), 0.0, 0.0, 0.0, 0, "completed", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	app := testApp(t, mock)
	body, _ := json.Marshal(activity.Session{ID: "client-1", Sport: activity.Sport{Name: "Course"}, Distance: 5.0})
	req := httptest.NewRequest(http.MethodPost, "/sessions/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("upsert status: %v %d", err, resp.StatusCode)
	}

	var created activity.Session
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID != "client-1" || created.UserID != "user-1" {
		t.Fatalf("unexpected session %+v", created)
	}
}

func TestSessionHandlersUpsertParseError(t *testing.T) {
	app := testApp(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/sessions/", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}
}

func TestSessionHandlersRangeDateFormats(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	cols := []string{"id", "user_id", "sport_name", "sport_emoji", "distance", "duration", "calories", "avg_speed", "max_speed", "steps", "status", "created_at"}
	mock.ExpectQuery(`SELECT id, user_id, sport_name`).
		WithArgs("user-1", int64(1718409600000), int64(1718496000000), 200).
		WillReturnRows(pgxmock.NewRows(cols))

	app := testApp(t, mock)
	// RFC3339 and epoch millis are both accepted.
	req := httptest.NewRequest(http.MethodGet, "/sessions/?dateFrom=2024-06-15T00:00:00Z&dateTo=1718496000000", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("range status: %v %d", err, resp.StatusCode)
	}

	var sessions []activity.Session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sessions == nil || len(sessions) != 0 {
		t.Fatalf("empty result must encode as [], got %+v", sessions)
	}
}

func TestSessionHandlersRangeBadDate(t *testing.T) {
	app := testApp(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/sessions/?dateFrom=le-quinze", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for malformed dateFrom")
	}
}

func TestSessionHandlersDailyStatsRequiresDate(t *testing.T) {
	app := testApp(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/sessions/stats/daily", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request without date")
	}
}

func TestSessionHandlersDeleteNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT created_at FROM sessions`).
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)

	app := testApp(t, mock)
	req := httptest.NewRequest(http.MethodDelete, "/sessions/gone", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSessionHandlersDeleteLookupError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT created_at FROM sessions`).
		WithArgs("s1").
		WillReturnError(errSession)

	app := testApp(t, mock)
	req := httptest.NewRequest(http.MethodDelete, "/sessions/s1", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("a failing lookup must be a 500, not a 404, got %d", resp.StatusCode)
	}
}

func TestSessionHandlersDelete(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT created_at FROM sessions`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(int64(1718445600000)))
	mock.ExpectExec(`DELETE FROM session_photos`).
		WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	app := testApp(t, mock)
	req := httptest.NewRequest(http.MethodDelete, "/sessions/s1", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}
