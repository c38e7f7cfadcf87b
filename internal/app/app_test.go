package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quizo/internal/config"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Port: "0", Mode: "test"},
		Quiz: config.QuizConfig{
			CountdownSeconds: 30,
			TickInterval:     time.Second,
			PauseOnComplete:  true,
		},
		Store: config.StoreConfig{
			Driver:       driver,
			SQLitePath:   filepath.Join(dir, "quizo.db"),
			WriteTimeout: time.Second,
		},
		RateLimit: config.RateLimitConfig{MaxRequests: 1000, WindowMinutes: 1},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := OpenStore(&config.StoreConfig{Driver: "indexeddb"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestAppServesQuiz(t *testing.T) {
	for _, driver := range []string{config.StoreMemory, config.StoreSQLite} {
		t.Run(driver, func(t *testing.T) {
			a, err := NewApp(testConfig(t, driver))
			if err != nil {
				t.Fatalf("new app: %v", err)
			}
			defer a.Shutdown(context.Background())

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/quiz/choice", strings.NewReader(`{"option":"Mercury"}`))
			req.Header.Set("Content-Type", "application/json")
			a.Router.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("choice status = %d body = %s", rec.Code, rec.Body.String())
			}

			rec = httptest.NewRecorder()
			a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/quiz/next", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("next status = %d", rec.Code)
			}

			if err := a.Quiz.Flush(context.Background()); err != nil {
				t.Fatalf("flush: %v", err)
			}

			rec = httptest.NewRecorder()
			a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attempts", nil))
			var body struct {
				Data []struct {
					Question string `json:"question"`
					Correct  bool   `json:"correct"`
				} `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Data) != 1 || !body.Data[0].Correct {
				t.Fatalf("attempts = %+v", body.Data)
			}

			rec = httptest.NewRecorder()
			a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("health status = %d", rec.Code)
			}

			rec = httptest.NewRecorder()
			a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "quiz_attempts_total") {
				t.Fatalf("metrics status = %d", rec.Code)
			}
		})
	}
}

func TestConfigReloadUpdatesCountdown(t *testing.T) {
	a, err := NewApp(testConfig(t, config.StoreMemory))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Shutdown(context.Background())

	reloaded := *a.Config
	reloaded.Quiz.CountdownSeconds = 12
	a.notifyConfig(&reloaded)

	if a.Config.Quiz.CountdownSeconds != 12 {
		t.Fatalf("config countdown = %d, want 12", a.Config.Quiz.CountdownSeconds)
	}
	// 当前题目不受影响，下一题开始生效
	if got := a.Quiz.View().Remaining; got != 30 {
		t.Fatalf("current remaining = %d, want 30", got)
	}
	res, err := a.Quiz.Advance()
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if res.View.Remaining != 12 {
		t.Fatalf("next remaining = %d, want 12", res.View.Remaining)
	}
}
