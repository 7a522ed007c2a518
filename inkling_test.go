package inkling

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Paranoid-AF/inkling/session"
)

func TestEventRoundTrip(t *testing.T) {
	text := "The cat sat "
	ev := Event{
		Type:   EventChange,
		ViewID: "v1",
		Text:   &text,
		Edits:  []session.Edit{{From: 11, To: 11, Inserted: " "}},
		Cursor: 12,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"view_id":"v1"`) {
		t.Errorf("expected view_id key in JSON, got %s", data)
	}
	if !strings.Contains(string(data), `"edits":[{"from":11,"to":11,"inserted":" "}]`) {
		t.Errorf("unexpected edits encoding: %s", data)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Text == nil || *decoded.Text != text {
		t.Errorf("Text = %v, want %q", decoded.Text, text)
	}
	if decoded.Cursor != 12 || len(decoded.Edits) != 1 {
		t.Errorf("unexpected decoded event %+v", decoded)
	}
}

func TestEventTextOmittedWhenNil(t *testing.T) {
	data, err := json.Marshal(Event{Type: EventCursor, ViewID: "v", Cursor: 3})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"text"`) {
		t.Errorf("expected no text key, got %s", data)
	}
	if !strings.Contains(string(data), `"cursor":3`) {
		t.Errorf("expected cursor:3, got %s", data)
	}
}

func TestMessageClearedSuggestionOmitsRemaining(t *testing.T) {
	data, err := json.Marshal(Message{Type: MessageSuggestion, ViewID: "v"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"remaining"`) {
		t.Errorf("expected remaining to be omitted when nil, got %s", data)
	}
}

func TestMessageEmptyRemainingIncludedWhenSet(t *testing.T) {
	rem := ""
	data, err := json.Marshal(Message{Type: MessageSuggestion, Remaining: &rem})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"remaining":""`) {
		t.Errorf("expected remaining to be included, got %s", data)
	}
}

func TestMessageErrorOmittedWhenNil(t *testing.T) {
	data, err := json.Marshal(Message{Type: MessageAccept, Handled: true})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"error"`) {
		t.Errorf("expected no error key, got %s", data)
	}
}

func TestNewError(t *testing.T) {
	msg := NewError("v9", ErrCodeUnknownView, "no such view")
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.Contains(s, `"type":"error"`) {
		t.Errorf("expected error type, got %s", s)
	}
	if !strings.Contains(s, `"unknown_view"`) {
		t.Errorf("expected unknown_view code, got %s", s)
	}
}
