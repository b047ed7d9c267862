package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/capture-session-service/internal/tools/common"
)

// Config describes one synthetic run against a live service: each room gets
// a host and a number of guests, and the host streams lines to them.
type Config struct {
	BaseURL       string
	Profile       string
	Rooms         int
	GuestsPerRoom int
	LinesPerRoom  int
	LineInterval  time.Duration
	Concurrency   int
	Seed          int64
}

type Result struct {
	Rooms          int64
	Joins          int64
	JoinFailures   int64
	LinesSent      int64
	LinesDelivered int64
	Events         map[string]int64
	P50            time.Duration
	P95            time.Duration
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type line struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	JapaneseCount int       `json:"japaneseCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

type collector struct {
	joins, joinFailures, sent, delivered atomic.Int64

	mu        sync.Mutex
	events    map[string]int64
	latencies []time.Duration
}

func (c *collector) event(name string) {
	c.mu.Lock()
	c.events[classifyEvent(name)]++
	c.mu.Unlock()
}

func (c *collector) latency(d time.Duration) {
	c.mu.Lock()
	c.latencies = append(c.latencies, d)
	c.mu.Unlock()
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg = normalize(cfg)
	c := &collector{events: make(map[string]int64)}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i := range cfg.Rooms {
		roomID := fmt.Sprintf("load-%d-%d", cfg.Seed, i)
		g.Go(func() error { return runRoom(gctx, cfg, roomID, c) })
	}
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	res := Result{
		Rooms:          int64(cfg.Rooms),
		Joins:          c.joins.Load(),
		JoinFailures:   c.joinFailures.Load(),
		LinesSent:      c.sent.Load(),
		LinesDelivered: c.delivered.Load(),
		Events:         c.events,
	}
	res.P50, res.P95 = percentiles(c.latencies)
	return res, err
}

func runRoom(ctx context.Context, cfg Config, roomID string, c *collector) error {
	url := common.WebsocketURL(cfg.BaseURL)
	host, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial host: %w", err)
	}
	defer host.Close()
	if err := host.WriteJSON(map[string]any{"event": "join_room", "data": map[string]any{"roomId": roomID, "role": "host"}}); err != nil {
		return fmt.Errorf("host join: %w", err)
	}
	if err := await(host, c, "room_joined"); err != nil {
		c.joinFailures.Add(1)
		return fmt.Errorf("room %s: %w", roomID, err)
	}
	c.joins.Add(1)

	guests := make([]*websocket.Conn, 0, cfg.GuestsPerRoom)
	defer func() {
		for _, g := range guests {
			_ = g.Close()
		}
	}()
	for range cfg.GuestsPerRoom {
		guest, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return fmt.Errorf("dial guest: %w", err)
		}
		guests = append(guests, guest)
		if err := guest.WriteJSON(map[string]any{"event": "join_room", "data": roomID}); err != nil {
			return fmt.Errorf("guest join: %w", err)
		}
		if err := await(guest, c, "room_joined"); err != nil {
			c.joinFailures.Add(1)
			continue
		}
		c.joins.Add(1)
	}
	if cfg.Profile == "join" {
		return nil
	}

	var readers sync.WaitGroup
	for _, guest := range guests {
		readers.Add(1)
		go func() {
			defer readers.Done()
			drain(guest, c, cfg.LinesPerRoom)
		}()
	}
	for n := range cfg.LinesPerRoom {
		l := line{ID: fmt.Sprintf("%s-%d", roomID, n), Text: "負荷テスト", JapaneseCount: 5, CreatedAt: time.Now()}
		if err := host.WriteJSON(map[string]any{"event": "send_line", "data": map[string]any{"roomId": roomID, "lineData": l}}); err != nil {
			return fmt.Errorf("send line: %w", err)
		}
		c.sent.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.LineInterval):
		}
	}
	readers.Wait()
	return nil
}

// await reads frames until event arrives. An error_message ends the wait.
func await(conn *websocket.Conn, c *collector, event string) error {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		c.event(f.Event)
		switch f.Event {
		case event:
			return nil
		case "error_message":
			var msg string
			_ = json.Unmarshal(f.Data, &msg)
			return fmt.Errorf("server error: %s", msg)
		}
	}
}

func drain(conn *websocket.Conn, c *collector, want int) {
	got := 0
	for got < want {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		c.event(f.Event)
		if f.Event != "receive_line" {
			continue
		}
		var l line
		if err := json.Unmarshal(f.Data, &l); err == nil && !l.CreatedAt.IsZero() {
			c.latency(time.Since(l.CreatedAt))
		}
		c.delivered.Add(1)
		got++
	}
}

func normalize(cfg Config) Config {
	cfg.Profile = normalizeProfile(cfg.Profile)
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	cfg.Rooms = max(cfg.Rooms, 1)
	cfg.GuestsPerRoom = max(cfg.GuestsPerRoom, 0)
	cfg.LinesPerRoom = max(cfg.LinesPerRoom, 0)
	cfg.Concurrency = max(cfg.Concurrency, 1)
	if cfg.LineInterval <= 0 {
		cfg.LineInterval = 50 * time.Millisecond
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return cfg
}

func normalizeProfile(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "join", "relay":
		return p
	default:
		return "relay"
	}
}

func classifyEvent(event string) string {
	switch event {
	case "room_created", "room_joined", "load_history", "receive_line", "room_users_update", "error_message":
		return event
	default:
		return "other"
	}
}

func percentiles(samples []time.Duration) (p50, p95 time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	at := func(q float64) time.Duration {
		idx := int(q * float64(len(sorted)-1))
		return sorted[idx]
	}
	return at(0.50), at(0.95)
}
