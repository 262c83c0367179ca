package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stridelab/stridecoach/internal/coach"
	"github.com/stridelab/stridecoach/internal/database"
	"github.com/stridelab/stridecoach/internal/models"
)

// testDB creates a fresh in-memory SQLite database with migrations applied.
func testDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testServer builds the full router over a fresh database with no AI
// provider configured, so every coach endpoint exercises the fallback path.
func testServer(t testing.TB) (*httptest.Server, *sql.DB) {
	t.Helper()

	db := testDB(t)
	engine := coach.NewEngine(db, coach.NewClient(nil, coach.DefaultFallbackModel))
	srv := httptest.NewServer(New(db, engine, nil, nil))
	t.Cleanup(srv.Close)
	return srv, db
}

// seedUser creates a user and returns its id.
func seedUser(t testing.TB, db *sql.DB, username string) int64 {
	t.Helper()
	user, err := models.CreateUser(db, username, "")
	if err != nil {
		t.Fatalf("seed user %q: %v", username, err)
	}
	return user.ID
}

// seedActivity inserts a completed run daysAgo days back.
func seedActivity(t testing.TB, db *sql.DB, userID int64, daysAgo int, km float64, minutes int) *models.Activity {
	t.Helper()
	a, err := models.CreateActivity(db, &models.Activity{
		UserID:      userID,
		Type:        "Run",
		Name:        "Morning Run",
		StartTime:   time.Now().AddDate(0, 0, -daysAgo),
		DistanceM:   km * 1000,
		MovingTimeS: minutes * 60,
	})
	if err != nil {
		t.Fatalf("seed activity: %v", err)
	}
	return a
}

// doJSON issues a request with an optional JSON body and decodes the JSON
// response into a generic map.
func doJSON(t testing.TB, srv *httptest.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("decode response from %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

// uploadCSV posts csvBody as a multipart "file" field.
func uploadCSV(t testing.TB, srv *httptest.Server, path, csvBody string) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "activities.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.Copy(part, strings.NewReader(csvBody)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("build upload request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("decode upload response: %v", err)
	}
	return resp.StatusCode, out
}

func userPath(userID int64, suffix string) string {
	return fmt.Sprintf("/users/%d%s", userID, suffix)
}
