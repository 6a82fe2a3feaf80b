package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"

	"popjoy/internal/clock"
	"popjoy/internal/config"
	"popjoy/internal/http/handlers"
	"popjoy/internal/repos"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		DBDriver:             repos.DriverSQLite,
		DBDSN:                ":memory:",
		AllocationMaxRetries: 3,
		RateLimitMax:         1000,
		BodyLimitBytes:       1 << 20,
		ShutdownTimeout:      time.Second,
	}
}

// newTestApp serves the full route table over a seeded in-memory store:
// owner u-owner, variants v-choco-12 / v-mango-12, batches b-choco-0326 (6
// units), b-choco-0626 (4) and b-mango-0426 (5).
func newTestApp(t *testing.T, cfg config.Config) (*fiber.App, *sqlx.DB) {
	t.Helper()
	db, err := repos.OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := repos.SeedDemo(context.Background(), db, t0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	clk := clock.NewStepped(t0, time.Millisecond)
	return handlers.NewApp(cfg, handlers.NewDeps(db, cfg, clk)), db
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: bad JSON %q", method, path, raw)
		}
	}
	return resp, out
}

type logEntry struct {
	Level  string         `json:"level"`
	Action string         `json:"action"`
	ReqID  string         `json:"req_id"`
	Err    string         `json:"err"`
	Fields map[string]any `json:"fields"`
}

type lockedBuf struct {
	b  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	var buf bytes.Buffer
	var mu sync.Mutex
	oldW := log.Writer()
	oldFlags := log.Flags()
	log.SetOutput(&lockedBuf{b: &buf, mu: &mu})
	log.SetFlags(0)
	defer func() {
		log.SetOutput(oldW)
		log.SetFlags(oldFlags)
	}()

	fn()

	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func findLog(entries []logEntry, action string) (logEntry, bool) {
	for _, e := range entries {
		if e.Action == action {
			return e, true
		}
	}
	return logEntry{}, false
}

func newEvent(t *testing.T, app *fiber.App, units int) string {
	t.Helper()
	resp, body := doJSON(t, app, "POST", "/events", map[string]any{
		"name":            "Beach market",
		"startAt":         "2026-07-04T10:00:00Z",
		"internalOwnerId": "u-owner",
		"allocatedUnits":  units,
		"eventPrice":      "25.00",
		"foodCost":        "10",
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create event: want 201, got %d %v", resp.StatusCode, body)
	}
	return body["id"].(string)
}
