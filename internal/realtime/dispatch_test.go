package realtime

import (
	"context"
	"testing"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
)

func TestDispatchRoutesEvents(t *testing.T) {
	hub, _ := newHubForTest(t, nil)
	ctx := context.Background()
	peers := connect(hub, "h", "g")

	hub.Dispatch(ctx, peers[0], domain.Anonymous, []byte(`{"event":"join_room","data":{"roomId":"r","role":"host","hostToken":"t"}}`))
	if len(peers[0].all(EventRoomCreated)) != 1 {
		t.Fatalf("expected room_created, got %v", peers[0].names())
	}

	hub.Dispatch(ctx, peers[1], domain.Anonymous, []byte(`{"event":"join_room","data":"r"}`))
	var joined RoomJoinedPayload
	peers[1].last(t, EventRoomJoined, &joined)
	if joined.Role != domain.RoleGuest || joined.RoomID != "r" {
		t.Fatalf("plain string join must be a guest join, got %+v", joined)
	}

	hub.Dispatch(ctx, peers[1], domain.Anonymous, []byte(`{"event":"send_line","data":{"roomId":"r","lineData":{"id":"1","text":"x"}}}`))
	if len(peers[0].all(EventReceiveLine)) != 1 {
		t.Fatalf("host expected relayed line, got %v", peers[0].names())
	}
}

func TestDispatchMalformedFramesKeepConnection(t *testing.T) {
	hub, _ := newHubForTest(t, nil)
	p := connect(hub, "p")[0]
	frames := []string{`not json`, `{"event":"dance"}`, `{"event":"join_room"}`, `{"event":"join_room","data":{"roomId":"r","userId":"abc"}}`}
	for _, f := range frames {
		p.reset()
		hub.Dispatch(context.Background(), p, domain.Anonymous, []byte(f))
		if len(p.all(EventErrorMessage)) != 1 {
			t.Fatalf("frame %q: expected one error_message, got %v", f, p.names())
		}
	}
}

func TestJoinRequestUserIDForms(t *testing.T) {
	for _, raw := range []string{`{"roomId":"r","userId":5}`, `{"roomId":"r","userId":"5"}`} {
		var req JoinRequest
		if err := req.UnmarshalJSON([]byte(raw)); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if req.UserID != 5 {
			t.Fatalf("%s: expected user id 5, got %d", raw, req.UserID)
		}
	}
}
