package roomtail

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/capture-session-service/internal/tools/common"
)

type Options struct {
	BaseURL  string
	RoomID   string
	Username string
	Token    string
}

// Run joins the room as a guest and renders its feed until the user quits.
func Run(ctx context.Context, opts Options) error {
	if opts.RoomID == "" {
		return errors.New("room id is required")
	}
	client, err := Dial(ctx, common.WebsocketURL(opts.BaseURL), opts.Token)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Join(opts.RoomID, opts.Username); err != nil {
		return err
	}
	_, err = tea.NewProgram(NewModel(opts.RoomID, client.Next), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
