package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
)

const (
	EventJoinRoom = "join_room"
	EventSendLine = "send_line"

	EventRoomCreated     = "room_created"
	EventRoomJoined      = "room_joined"
	EventLoadHistory     = "load_history"
	EventReceiveLine     = "receive_line"
	EventRoomUsersUpdate = "room_users_update"
	EventErrorMessage    = "error_message"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRequest struct {
	RoomID    string `json:"roomId"`
	Role      string `json:"role"`
	HostToken string `json:"hostToken,omitempty"`
	Username  string `json:"username,omitempty"`
	UserID    userID `json:"userId,omitempty"`
}

// UnmarshalJSON accepts either the object form or a bare room id string,
// which is a guest join.
func (j *JoinRequest) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var roomID string
		if err := json.Unmarshal(data, &roomID); err != nil {
			return err
		}
		*j = JoinRequest{RoomID: roomID, Role: string(domain.RoleGuest)}
		return nil
	}
	type plain JoinRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*j = JoinRequest(p)
	return nil
}

type SendLineRequest struct {
	RoomID   string          `json:"roomId"`
	LineData json.RawMessage `json:"lineData"`
}

type RoomCreatedPayload struct {
	RoomID    string `json:"roomId"`
	HostToken string `json:"hostToken"`
}

type RoomJoinedPayload struct {
	Role   domain.Role `json:"role"`
	RoomID string      `json:"roomId"`
}

type MemberView struct {
	ID       string      `json:"id"`
	Role     domain.Role `json:"role"`
	Username string      `json:"username"`
	UserID   *uint       `json:"userId"`
}

// userID tolerates clients that send the id as a number or a numeric string.
type userID uint

func (u *userID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("userId: %w", err)
	}
	*u = userID(v)
	return nil
}
