package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/capture-session-service/internal/config"
	"github.com/sandeepkv93/capture-session-service/internal/di"
	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/security"
)

const testJWTSecret = "integration-secret-0123456789abcdef"

type captureServer struct {
	baseURL string
	client  *http.Client
	jwt     *security.JWTManager
	dbPath  string
}

func newCaptureTestServer(t *testing.T) (captureServer, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "capture.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:"+dbPath+"?_busy_timeout=5000")
	t.Setenv("JWT_ACCESS_SECRET", testJWTSecret)
	t.Setenv("JWT_ISSUER", "capture-it")
	t.Setenv("JWT_AUDIENCE", "capture-it-clients")
	t.Setenv("NEGATIVE_CACHE_BACKEND", "memory")
	t.Setenv("RATE_LIMIT_BACKEND", "local")
	t.Setenv("API_RATE_LIMIT_PER_MIN", "10000")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	a, cleanup, err := di.InitializeApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("initialize app: %v", err)
	}
	srv := httptest.NewServer(a.Server.Handler)
	s := captureServer{
		baseURL: srv.URL,
		client:  &http.Client{Timeout: 10 * time.Second},
		jwt:     security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret),
		dbPath:  dbPath,
	}
	return s, func() {
		srv.Close()
		cleanup()
	}
}

func (s captureServer) seedMedia(t *testing.T, media ...domain.Media) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+s.dbPath+"?_busy_timeout=5000"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("seed sql db: %v", err)
	}
	defer sqlDB.Close()
	for i := range media {
		if err := db.Create(&media[i]).Error; err != nil {
			t.Fatalf("seed media %q: %v", media[i].ContentID, err)
		}
	}
}

func (s captureServer) authHeader(t *testing.T, userID uint) map[string]string {
	t.Helper()
	token, err := s.jwt.SignAccessToken(userID, "it-user", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func (s captureServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial socket: %v", err)
	}
	return conn
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, apiEnvelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(resp.Body)
	var env apiEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v body=%s", err, raw)
		}
	}
	return resp, env
}

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// firstOf reads until one of the events arrives.
func firstOf(t *testing.T, conn *websocket.Conn, events ...string) wsFrame {
	t.Helper()
	f, err := readFirst(conn, events...)
	if err != nil {
		t.Fatalf("waiting for %v: %v", events, err)
	}
	return f
}

func readFirst(conn *websocket.Conn, events ...string) (wsFrame, error) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			return wsFrame{}, err
		}
		for _, e := range events {
			if f.Event == e {
				return f, nil
			}
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type auditRecorder struct {
	buf syncBuffer
}

// recordAudit routes the default logger into a buffer for the rest of the
// test so audit records can be inspected.
func recordAudit(t *testing.T) *auditRecorder {
	t.Helper()
	rec := &auditRecorder{}
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&rec.buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return rec
}

func (r *auditRecorder) Events() []map[string]any {
	return extractAuditEvents(r.buf.String())
}

// waitFor polls until at least n events with the name were recorded.
func (r *auditRecorder) waitFor(t *testing.T, name string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for countAuditEvents(r.Events(), name) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d %s audit events", n, name)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func extractAuditEvents(logs string) []map[string]any {
	events := make([]map[string]any, 0)
	for _, line := range strings.Split(logs, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if msg, _ := event["msg"].(string); msg == "audit" {
			events = append(events, event)
		}
	}
	return events
}

func countAuditEvents(events []map[string]any, name string) int {
	n := 0
	for _, e := range events {
		if got, _ := e["event"].(string); got == name {
			n++
		}
	}
	return n
}
