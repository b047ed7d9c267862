package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sentEvent struct {
	Event string
	Data  json.RawMessage
}

type fakePeer struct {
	id     string
	mu     sync.Mutex
	events []sentEvent
}

func newFakePeer(id string) *fakePeer { return &fakePeer{id: id} }

func (f *fakePeer) ID() string { return f.id }

func (f *fakePeer) Send(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.events = append(f.events, sentEvent{Event: event, Data: raw})
	f.mu.Unlock()
	return nil
}

func (f *fakePeer) reset() {
	f.mu.Lock()
	f.events = nil
	f.mu.Unlock()
}

func (f *fakePeer) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Event)
	}
	return out
}

func (f *fakePeer) all(event string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e.Data)
		}
	}
	return out
}

func (f *fakePeer) last(t *testing.T, event string, dst any) {
	t.Helper()
	all := f.all(event)
	if len(all) == 0 {
		t.Fatalf("peer %s: no %s event, got %v", f.id, event, f.names())
	}
	if err := json.Unmarshal(all[len(all)-1], dst); err != nil {
		t.Fatalf("peer %s: decode %s: %v", f.id, event, err)
	}
}

func (f *fakePeer) lastError(t *testing.T) string {
	t.Helper()
	var msg string
	f.last(t, EventErrorMessage, &msg)
	return msg
}

func newHubForTest(t *testing.T, store RoomStore) (*Hub, repository.SessionRepository) {
	t.Helper()
	var repo repository.SessionRepository
	if store == nil {
		repo = newRepoForTest(t)
		store = repo
	}
	hub := NewHub(store, NewMemoryPresence(), nil, HubConfig{RoomTTL: time.Hour}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return hub, repo
}

func newRepoForTest(t *testing.T) repository.SessionRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return repository.NewSessionRepository(db)
}

func connect(hub *Hub, ids ...string) []*fakePeer {
	out := make([]*fakePeer, 0, len(ids))
	for _, id := range ids {
		p := newFakePeer(id)
		hub.Connect(context.Background(), p)
		out = append(out, p)
	}
	return out
}

func presenceOf(t *testing.T, p *fakePeer) []MemberView {
	t.Helper()
	var views []MemberView
	p.last(t, EventRoomUsersUpdate, &views)
	return views
}

func rolesOf(views []MemberView) string {
	parts := make([]string, 0, len(views))
	for _, v := range views {
		parts = append(parts, v.ID+":"+string(v.Role))
	}
	return strings.Join(parts, ",")
}

// failingStore fails line appends and delegates everything else.
type failingStore struct {
	RoomStore
}

func (failingStore) AppendLines(context.Context, domain.SessionKey, []domain.Line) (*domain.Session, int, error) {
	return nil, 0, fmt.Errorf("disk full")
}

func (h *Hub) presenceViews(roomID string) []MemberView {
	members := h.presence.MembersOf(roomID)
	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, m.view())
	}
	return views
}
