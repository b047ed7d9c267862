package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestLineValidate(t *testing.T) {
	cases := []struct {
		name    string
		line    Line
		wantErr bool
	}{
		{name: "valid", line: Line{ID: "l1", Text: "こんにちは", CharsCount: 5}},
		{name: "zero count", line: Line{ID: "l1", Text: "abc"}},
		{name: "missing id", line: Line{Text: "abc"}, wantErr: true},
		{name: "long id", line: Line{ID: strings.Repeat("x", MaxLineIDLength+1), Text: "abc"}, wantErr: true},
		{name: "missing text", line: Line{ID: "l1"}, wantErr: true},
		{name: "negative count", line: Line{ID: "l1", Text: "abc", CharsCount: -1}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.line.Validate()
			if tc.wantErr && !errors.Is(err, ErrInvalidLine) {
				t.Fatalf("expected ErrInvalidLine, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAppendLinesIsIdempotentByID(t *testing.T) {
	existing := []Line{{ID: "a", Text: "1"}, {ID: "b", Text: "2"}}
	out, added := AppendLines(existing, []Line{{ID: "b", Text: "dup"}, {ID: "c", Text: "3"}, {ID: "c", Text: "dup"}})
	if added != 1 {
		t.Fatalf("expected 1 added, got %d", added)
	}
	got := make([]string, 0, len(out))
	for _, l := range out {
		got = append(got, l.ID+"="+l.Text)
	}
	if strings.Join(got, ",") != "a=1,b=2,c=3" {
		t.Fatalf("unexpected order or content: %v", got)
	}
	if len(existing) != 2 {
		t.Fatalf("input slice must not change, got %d lines", len(existing))
	}
}

func TestRemoveLinesKeepsOrder(t *testing.T) {
	existing := []Line{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	out, removed := RemoveLines(existing, []string{"b", "d", "missing"})
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "c" {
		t.Fatalf("unexpected remaining lines: %+v", out)
	}

	same, removed := RemoveLines(existing, nil)
	if removed != 0 || len(same) != 4 {
		t.Fatalf("expected no-op for empty ids, removed=%d len=%d", removed, len(same))
	}
}

func TestScopeKeysNeverAlias(t *testing.T) {
	room := NewRoomSession("42", "t1", time.Time{})
	media := NewMediaSession(4, 2)
	if room.Scope.Key().String() == media.Scope.Key().String() {
		t.Fatal("room and media keys must differ")
	}
	if _, ok := room.Media(); ok {
		t.Fatal("room session must not expose a media scope")
	}
	if _, ok := media.Room(); ok {
		t.Fatal("media session must not expose a room scope")
	}
}

func FuzzLineValidateRobustness(f *testing.F) {
	f.Add("l1", "こんにちは", 5)
	f.Add("", "", 0)
	f.Add(strings.Repeat("i", 200), "text", -3)

	f.Fuzz(func(t *testing.T, id, text string, count int) {
		l := Line{ID: id, Text: text, CharsCount: count}
		err := l.Validate()
		valid := id != "" && len(id) <= MaxLineIDLength && text != "" && count >= 0
		if valid && err != nil {
			t.Fatalf("expected valid line, got %v", err)
		}
		if !valid && !errors.Is(err, ErrInvalidLine) {
			t.Fatalf("expected ErrInvalidLine for %q/%q/%d, got %v", id, text, count, err)
		}
		if err != nil && !utf8.ValidString(err.Error()) {
			t.Fatalf("error message must be valid UTF-8: %q", err.Error())
		}
	})
}

func TestLineCreatedAtForms(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "rfc3339", in: `{"id":"a","text":"x","japaneseCount":1,"createdAt":"2026-01-01T00:00:00Z"}`, want: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "epoch millis", in: `{"id":"a","text":"x","japaneseCount":1,"createdAt":1767225600123}`, want: time.UnixMilli(1767225600123)},
		{name: "absent", in: `{"id":"a","text":"x","japaneseCount":1}`},
		{name: "null", in: `{"id":"a","text":"x","japaneseCount":1,"createdAt":null}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var l Line
			if err := json.Unmarshal([]byte(tc.in), &l); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !l.CreatedAt.Equal(tc.want) {
				t.Fatalf("createdAt: want %v, got %v", tc.want, l.CreatedAt)
			}
			out, err := json.Marshal(l)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			want := tc.in
			if tc.name == "null" {
				want = `{"id":"a","text":"x","japaneseCount":1}`
			}
			if string(out) != want {
				t.Fatalf("history form diverges from input:\n in: %s\nout: %s", want, out)
			}
		})
	}
}

func TestLineRejectsMalformedCreatedAt(t *testing.T) {
	for _, in := range []string{
		`{"id":"a","text":"x","createdAt":"yesterday"}`,
		`{"id":"a","text":"x","createdAt":true}`,
	} {
		var l Line
		if err := json.Unmarshal([]byte(in), &l); err == nil {
			t.Fatalf("expected error for %s", in)
		}
	}
}
