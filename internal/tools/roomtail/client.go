package roomtail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

type Line struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	JapaneseCount int       `json:"japaneseCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Member struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

type (
	joinedMsg  struct{ role string }
	historyMsg []Line
	lineMsg    Line
	membersMsg []Member
	serverErr  string
	closedMsg  struct{ err error }
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client is a guest connection that turns server frames into tea messages.
type Client struct {
	conn   *websocket.Conn
	frames chan tea.Msg
}

func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{conn: conn, frames: make(chan tea.Msg, 64)}
	go c.read()
	return c, nil
}

func (c *Client) Join(roomID, username string) error {
	return c.conn.WriteJSON(map[string]any{
		"event": "join_room",
		"data":  map[string]any{"roomId": roomID, "role": "guest", "username": username},
	})
}

func (c *Client) Close() error { return c.conn.Close() }

// Next blocks for the next server message.
func (c *Client) Next() tea.Cmd {
	return func() tea.Msg {
		return <-c.frames
	}
}

func (c *Client) read() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.frames <- closedMsg{err: err}
			close(c.frames)
			return
		}
		if msg := decodeFrame(data); msg != nil {
			c.frames <- msg
		}
	}
}

func decodeFrame(data []byte) tea.Msg {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil
	}
	switch f.Event {
	case "room_joined":
		var p struct {
			Role string `json:"role"`
		}
		_ = json.Unmarshal(f.Data, &p)
		return joinedMsg{role: p.Role}
	case "load_history":
		var lines []Line
		if json.Unmarshal(f.Data, &lines) != nil {
			return nil
		}
		return historyMsg(lines)
	case "receive_line":
		var l Line
		if json.Unmarshal(f.Data, &l) != nil {
			return nil
		}
		return lineMsg(l)
	case "room_users_update":
		var members []Member
		if json.Unmarshal(f.Data, &members) != nil {
			return nil
		}
		return membersMsg(members)
	case "error_message":
		var msg string
		_ = json.Unmarshal(f.Data, &msg)
		return serverErr(msg)
	default:
		return nil
	}
}
