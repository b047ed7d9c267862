package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSessionRepositoryFindOrCreateRoomKeepsFirstToken(t *testing.T) {
	repo, _ := newSessionRepoForTest(t)
	ctx := context.Background()
	expireAt := time.Now().Add(time.Hour)

	s, created, err := repo.FindOrCreateRoom(ctx, "abc123", "t1", expireAt)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create the room")
	}
	room, ok := s.Room()
	if !ok || room.HostToken != "t1" {
		t.Fatalf("unexpected room scope: %+v", s.Scope)
	}

	s, created, err = repo.FindOrCreateRoom(ctx, "abc123", "t2", expireAt)
	if err != nil {
		t.Fatalf("find room: %v", err)
	}
	if created {
		t.Fatal("second call must not create")
	}
	if room, _ := s.Room(); room.HostToken != "t1" {
		t.Fatalf("host token changed to %q", room.HostToken)
	}
}

func TestSessionRepositoryExpiredRoomIsAbsent(t *testing.T) {
	repo, g := newSessionRepoForTest(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	if _, _, err := repo.FindOrCreateRoom(ctx, "old", "t1", now.Add(time.Minute)); err != nil {
		t.Fatalf("create room: %v", err)
	}
	now = now.Add(2 * time.Minute)

	exists, err := repo.RoomExists(ctx, "old")
	if err != nil {
		t.Fatalf("room exists: %v", err)
	}
	if exists {
		t.Fatal("expired room must not exist")
	}
	if _, err := repo.Find(ctx, domain.RoomKey{RoomID: "old"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := repo.AppendLines(ctx, domain.RoomKey{RoomID: "old"}, []domain.Line{{ID: "l1", Text: "x"}}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found on append, got %v", err)
	}

	s, created, err := repo.FindOrCreateRoom(ctx, "old", "t2", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("reclaim room: %v", err)
	}
	if !created {
		t.Fatal("expected expired room id to be reclaimed")
	}
	if room, _ := s.Room(); room.HostToken != "t2" {
		t.Fatalf("expected new token t2, got %q", room.HostToken)
	}
}

func TestSessionRepositoryAppendLinesPreservesOrder(t *testing.T) {
	repo, _ := newSessionRepoForTest(t)
	ctx := context.Background()
	key := domain.RoomKey{RoomID: "r1"}

	if _, _, err := repo.AppendLines(ctx, key, []domain.Line{{ID: "l0", Text: "x"}}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("append to absent room must fail, got %v", err)
	}
	if _, _, err := repo.FindOrCreateRoom(ctx, "r1", "t", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, id := range []string{"l1", "l2", "l3"} {
		if _, added, err := repo.AppendLines(ctx, key, []domain.Line{{ID: id, Text: "text " + id, CharsCount: 2}}); err != nil || added != 1 {
			t.Fatalf("append %s: added=%d err=%v", id, added, err)
		}
	}
	s, added, err := repo.AppendLines(ctx, key, []domain.Line{{ID: "l2", Text: "dup"}})
	if err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	if added != 0 {
		t.Fatalf("duplicate id must not be appended, added=%d", added)
	}
	got := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		got = append(got, l.ID)
	}
	if strings.Join(got, ",") != "l1,l2,l3" {
		t.Fatalf("unexpected order: %v", got)
	}
	if s.Lines[1].Text != "text l2" {
		t.Fatalf("duplicate overwrote stored line: %+v", s.Lines[1])
	}
}

func TestSessionRepositoryMediaUpsertAndRemove(t *testing.T) {
	repo, _ := newSessionRepoForTest(t)
	ctx := context.Background()
	key := domain.MediaKey{UserID: 7, MediaID: 9}

	if _, err := repo.RemoveLines(ctx, key, []string{"a"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("remove on absent media session must fail, got %v", err)
	}
	s, added, err := repo.AppendLines(ctx, key, []domain.Line{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}})
	if err != nil || added != 2 {
		t.Fatalf("append upsert: added=%d err=%v", added, err)
	}
	if _, ok := s.Media(); !ok {
		t.Fatalf("expected media scope, got %+v", s.Scope)
	}
	s, err = repo.RemoveLines(ctx, key, []string{"a"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(s.Lines) != 1 || s.Lines[0].ID != "b" {
		t.Fatalf("unexpected lines after remove: %+v", s.Lines)
	}
	s, err = repo.ClearLines(ctx, key)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(s.Lines) != 0 {
		t.Fatalf("expected cleared lines, got %+v", s.Lines)
	}

	deleted, err := repo.Delete(ctx, key)
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = repo.Delete(ctx, key)
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}

func TestSessionRepositoryRoomsAndMediaNeverAlias(t *testing.T) {
	repo, _ := newSessionRepoForTest(t)
	ctx := context.Background()

	if _, _, err := repo.FindOrCreateRoom(ctx, "1", "t", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := repo.FindOrCreateMedia(ctx, domain.MediaKey{UserID: 1, MediaID: 1}); err != nil {
		t.Fatalf("create media: %v", err)
	}
	if _, _, err := repo.AppendLines(ctx, domain.RoomKey{RoomID: "1"}, []domain.Line{{ID: "r", Text: "room"}}); err != nil {
		t.Fatalf("append room: %v", err)
	}

	media, err := repo.Find(ctx, domain.MediaKey{UserID: 1, MediaID: 1})
	if err != nil {
		t.Fatalf("find media: %v", err)
	}
	if len(media.Lines) != 0 {
		t.Fatalf("room line leaked into media session: %+v", media.Lines)
	}
	if deleted, err := repo.Delete(ctx, domain.RoomKey{RoomID: "1"}); err != nil || !deleted {
		t.Fatalf("delete room: deleted=%v err=%v", deleted, err)
	}
	if _, err := repo.Find(ctx, domain.MediaKey{UserID: 1, MediaID: 1}); err != nil {
		t.Fatalf("media session must survive room delete: %v", err)
	}
}

func TestSessionRepositorySetTimerLastWriteWins(t *testing.T) {
	repo, _ := newSessionRepoForTest(t)
	ctx := context.Background()
	key := domain.MediaKey{UserID: 3, MediaID: 4}

	for _, v := range []int64{120, 0, 86400} {
		s, err := repo.SetTimer(ctx, key, v)
		if err != nil {
			t.Fatalf("set timer %d: %v", v, err)
		}
		if m, _ := s.Media(); m.TimerSeconds != v {
			t.Fatalf("expected timer %d, got %d", v, m.TimerSeconds)
		}
	}
}

func TestSessionRepositoryListMediaAndStats(t *testing.T) {
	repo, g := newSessionRepoForTest(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	g.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for media := uint(1); media <= 3; media++ {
		key := domain.MediaKey{UserID: 1, MediaID: media}
		if _, _, err := repo.AppendLines(ctx, key, []domain.Line{{ID: "x", Text: "x", CharsCount: int(media)}}); err != nil {
			t.Fatalf("append media %d: %v", media, err)
		}
		if _, err := repo.SetTimer(ctx, key, int64(media*10)); err != nil {
			t.Fatalf("timer media %d: %v", media, err)
		}
	}
	if _, err := repo.FindOrCreateMedia(ctx, domain.MediaKey{UserID: 2, MediaID: 1}); err != nil {
		t.Fatalf("create other user: %v", err)
	}
	if _, _, err := repo.AppendLines(ctx, domain.MediaKey{UserID: 1, MediaID: 1}, []domain.Line{{ID: "y", Text: "y", CharsCount: 4}}); err != nil {
		t.Fatalf("touch media 1: %v", err)
	}

	list, err := repo.ListMediaByUser(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if m, _ := list[0].Media(); m.MediaID != 1 {
		t.Fatalf("expected most recently updated media 1 first, got %d", m.MediaID)
	}
	if m, _ := list[1].Media(); m.MediaID != 3 {
		t.Fatalf("expected media 3 second, got %d", m.MediaID)
	}

	stats, err := repo.MediaStatsByUser(ctx, 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := domain.SessionStats{TotalSessions: 3, TotalLines: 4, TotalChars: 10, TotalTimerSeconds: 60}
	if stats != want {
		t.Fatalf("unexpected stats: %+v want %+v", stats, want)
	}
}

func TestSessionRepositoryCleanupExpiredRooms(t *testing.T) {
	repo, _ := newSessionRepoForTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, _, err := repo.FindOrCreateRoom(ctx, "live", "t", now.Add(time.Hour)); err != nil {
		t.Fatalf("create live: %v", err)
	}
	if _, _, err := repo.FindOrCreateRoom(ctx, "stale", "t", now.Add(time.Minute)); err != nil {
		t.Fatalf("create stale: %v", err)
	}
	if _, err := repo.FindOrCreateMedia(ctx, domain.MediaKey{UserID: 1, MediaID: 1}); err != nil {
		t.Fatalf("create media: %v", err)
	}

	deleted, err := repo.CleanupExpiredRooms(ctx, now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 expired room deleted, got %d", deleted)
	}
	if ok, _ := repo.RoomExists(ctx, "live"); !ok {
		t.Fatal("live room must survive cleanup")
	}
	if _, err := repo.Find(ctx, domain.MediaKey{UserID: 1, MediaID: 1}); err != nil {
		t.Fatalf("media session must survive cleanup: %v", err)
	}
}

func newSessionRepoForTest(t *testing.T) (SessionRepository, *GormSessionRepository) {
	t.Helper()
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	return repo, repo.(*GormSessionRepository)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}
