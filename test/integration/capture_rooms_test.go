package integration

import (
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestConcurrentHostsRaceForOneRoom(t *testing.T) {
	s, closeFn := newCaptureTestServer(t)
	defer closeFn()

	const hosts = 6
	conns := make([]*websocket.Conn, hosts)
	for i := range conns {
		conns[i] = s.dial(t)
	}

	var (
		created   int
		rejected  int
		hostToken string
	)
	audit := recordAudit(t)
	frames := make([]wsFrame, hosts)
	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(1)
		go func(i int, c *websocket.Conn) {
			defer wg.Done()
			if err := c.WriteJSON(map[string]any{"event": "join_room", "data": map[string]any{"roomId": "race-room", "role": "host"}}); err != nil {
				t.Errorf("host %d join: %v", i, err)
				return
			}
			f, err := readFirst(c, "room_created", "error_message")
			if err != nil {
				t.Errorf("host %d: %v", i, err)
				return
			}
			frames[i] = f
		}(i, c)
	}
	wg.Wait()
	if t.Failed() {
		t.FailNow()
	}

	for _, f := range frames {
		switch f.Event {
		case "room_created":
			created++
			var payload struct {
				HostToken string `json:"hostToken"`
			}
			if err := json.Unmarshal(f.Data, &payload); err != nil {
				t.Fatalf("decode room_created: %v", err)
			}
			hostToken = payload.HostToken
		case "error_message":
			var msg string
			_ = json.Unmarshal(f.Data, &msg)
			if msg != "invalid host token" {
				t.Fatalf("unexpected rejection %q", msg)
			}
			rejected++
		}
	}

	resp, env := doJSON(t, s.client, http.MethodGet, s.baseURL+"/api/v1/sessions/room/race-room/exists", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("room exists: status=%d", resp.StatusCode)
	}
	var exists map[string]bool
	_ = json.Unmarshal(env.Data, &exists)
	if !exists["exists"] {
		t.Fatal("expected race-room to exist while its host is connected")
	}

	for _, c := range conns {
		_ = c.Close()
	}
	waitForRoomGone(t, s, "race-room")
	audit.waitFor(t, "room.deleted", 1)
	events := audit.Events()

	if created != 1 || rejected != hosts-1 {
		t.Fatalf("expected one creator and %d rejections, got created=%d rejected=%d", hosts-1, created, rejected)
	}
	if hostToken == "" {
		t.Fatal("creator must receive a host token")
	}
	if got := countAuditEvents(events, "room.created"); got != 1 {
		t.Fatalf("expected one room.created audit event, got %d", got)
	}
	if got := countAuditEvents(events, "room.deleted"); got != 1 {
		t.Fatalf("expected one room.deleted audit event, got %d", got)
	}
}

func TestHostRejoinKeepsHistory(t *testing.T) {
	s, closeFn := newCaptureTestServer(t)
	defer closeFn()

	host := s.dial(t)
	if err := host.WriteJSON(map[string]any{"event": "join_room", "data": map[string]any{"roomId": "keep", "role": "host", "username": "hostess"}}); err != nil {
		t.Fatalf("host join: %v", err)
	}
	var created struct {
		HostToken string `json:"hostToken"`
	}
	if err := json.Unmarshal(firstOf(t, host, "room_created").Data, &created); err != nil {
		t.Fatalf("decode room_created: %v", err)
	}
	firstOf(t, host, "room_joined")

	// A second tab keeps the room alive while the first reconnects.
	guest := s.dial(t)
	defer func() { _ = guest.Close() }()
	if err := guest.WriteJSON(map[string]any{"event": "join_room", "data": "keep"}); err != nil {
		t.Fatalf("guest join: %v", err)
	}
	firstOf(t, guest, "load_history")

	line := `{"id":"l-1","text":"ゆっくり","japaneseCount":4,"createdAt":"2026-01-01T00:00:00Z"}`
	if err := host.WriteJSON(map[string]any{"event": "send_line", "data": map[string]any{"roomId": "keep", "lineData": json.RawMessage(line)}}); err != nil {
		t.Fatalf("send line: %v", err)
	}
	firstOf(t, guest, "receive_line")
	_ = host.Close()

	again := s.dial(t)
	defer func() { _ = again.Close() }()
	if err := again.WriteJSON(map[string]any{"event": "join_room", "data": map[string]any{"roomId": "keep", "role": "host", "hostToken": created.HostToken}}); err != nil {
		t.Fatalf("host rejoin: %v", err)
	}
	f := firstOf(t, again, "load_history", "error_message")
	if f.Event != "load_history" {
		t.Fatalf("host rejoin rejected: %s", f.Data)
	}
	var history []map[string]any
	if err := json.Unmarshal(f.Data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 || history[0]["id"] != "l-1" {
		t.Fatalf("expected persisted line in history, got %+v", history)
	}
}

func waitForRoomGone(t *testing.T, s captureServer, roomID string) {
	t.Helper()
	for i := 0; i < 100; i++ {
		_, env := doJSON(t, s.client, http.MethodGet, s.baseURL+"/api/v1/sessions/room/"+roomID+"/exists", nil, nil)
		var exists map[string]bool
		_ = json.Unmarshal(env.Data, &exists)
		if !exists["exists"] {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("room %s was not deleted after its members left", roomID)
}
