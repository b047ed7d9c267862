package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const MaxLineIDLength = 128

var ErrInvalidLine = errors.New("invalid line")

// Line is one captured unit of text. The wire name of CharsCount is
// japaneseCount, kept for existing clients.
type Line struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	CharsCount int       `json:"japaneseCount"`
	CreatedAt  time.Time `json:"createdAt"`

	epochMillis bool
}

type lineWire struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	CharsCount int             `json:"japaneseCount"`
	CreatedAt  json.RawMessage `json:"createdAt,omitempty"`
}

// UnmarshalJSON accepts createdAt as an RFC 3339 string or as epoch
// milliseconds. MarshalJSON writes it back in the same form, and omits it
// when absent, so stored history matches what was relayed.
func (l *Line) UnmarshalJSON(data []byte) error {
	var w lineWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*l = Line{ID: w.ID, Text: w.Text, CharsCount: w.CharsCount}
	raw := bytes.TrimSpace(w.CreatedAt)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("%w: createdAt: %v", ErrInvalidLine, err)
		}
		l.CreatedAt = t
	default:
		var ms float64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return fmt.Errorf("%w: createdAt must be a timestamp string or epoch milliseconds", ErrInvalidLine)
		}
		l.CreatedAt = time.UnixMilli(int64(ms)).UTC()
		l.epochMillis = true
	}
	return nil
}

func (l Line) MarshalJSON() ([]byte, error) {
	w := lineWire{ID: l.ID, Text: l.Text, CharsCount: l.CharsCount}
	switch {
	case l.CreatedAt.IsZero():
	case l.epochMillis:
		w.CreatedAt = strconv.AppendInt(nil, l.CreatedAt.UnixMilli(), 10)
	default:
		ts, err := l.CreatedAt.MarshalJSON()
		if err != nil {
			return nil, err
		}
		w.CreatedAt = ts
	}
	return json.Marshal(w)
}

func (l Line) Validate() error {
	switch {
	case l.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidLine)
	case len(l.ID) > MaxLineIDLength:
		return fmt.Errorf("%w: id exceeds %d bytes", ErrInvalidLine, MaxLineIDLength)
	case l.Text == "":
		return fmt.Errorf("%w: text is required", ErrInvalidLine)
	case l.CharsCount < 0:
		return fmt.Errorf("%w: japaneseCount must be non-negative", ErrInvalidLine)
	}
	return nil
}

// AppendLines appends incoming lines whose ids are not already present,
// keeping insertion order. It reports how many were added.
func AppendLines(existing, incoming []Line) ([]Line, int) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, l := range existing {
		seen[l.ID] = struct{}{}
	}
	out := make([]Line, 0, len(existing)+len(incoming))
	out = append(out, existing...)
	added := 0
	for _, l := range incoming {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
		added++
	}
	return out, added
}

// RemoveLines drops lines whose id is in ids, keeping the order of the rest.
func RemoveLines(existing []Line, ids []string) ([]Line, int) {
	if len(ids) == 0 {
		return existing, 0
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make([]Line, 0, len(existing))
	for _, l := range existing {
		if _, ok := drop[l.ID]; ok {
			continue
		}
		out = append(out, l)
	}
	return out, len(existing) - len(out)
}
