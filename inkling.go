// Package inkling defines the client/daemon protocol and the configuration
// shared by the inkling packages. Messages are sent over a Unix domain
// socket as newline-delimited JSON or as a stream of MessagePack maps.
package inkling

import "github.com/Paranoid-AF/inkling/session"

// Event types sent from the editor to the daemon.
const (
	EventOpen    = "open"
	EventChange  = "change"
	EventCursor  = "cursor"
	EventAccept  = "accept"
	EventTrigger = "trigger"
	EventCancel  = "cancel"
	EventClose   = "close"
	EventConfig  = "config"
	EventModels  = "models"
)

// Message types sent from the daemon to the editor.
const (
	MessageSuggestion = "suggestion"
	MessageInsert     = "insert"
	MessageAccept     = "accept"
	MessageOpened     = "opened"
	MessageConfig     = "config"
	MessageModels     = "models"
	MessageError      = "error"
)

// Event is sent from the editor to the daemon.
type Event struct {
	// Type is one of the Event* constants.
	Type string `json:"type"`
	// ViewID identifies the editor view. An open event without one is
	// assigned a fresh id, returned in the opened message.
	ViewID string `json:"view_id,omitempty"`
	// Path is the document path (open only). It selects the config profile.
	Path string `json:"path,omitempty"`
	// Text is the full document content. Required for open; for change it
	// may replace Edits when the editor only ships snapshots.
	Text *string `json:"text,omitempty"`
	// Edits are the applied ranges of a change, in pre-edit byte offsets.
	Edits []session.Edit `json:"edits,omitempty"`
	// Cursor is the byte offset of the cursor after the event.
	Cursor int `json:"cursor"`
	// Key is the pressed key name (accept only).
	Key string `json:"key,omitempty"`
	// Action is the config operation: "get", "reload", "defaults",
	// "default_prompt" or "validate".
	Action string `json:"action,omitempty"`
}

// Message is sent from the daemon back to the editor.
type Message struct {
	// Type is one of the Message* constants.
	Type   string `json:"type"`
	ViewID string `json:"view_id,omitempty"`
	// Remaining is the ghost text to render at Anchor; nil clears it.
	Remaining *string `json:"remaining,omitempty"`
	Anchor    int     `json:"anchor,omitempty"`
	// Insert is the edit the editor must apply for an acceptance. The
	// daemon has already applied it to its copy of the document, so the
	// editor must not report it back as a change.
	Insert *session.Edit `json:"insert,omitempty"`
	// Handled reports whether an accept key press was consumed.
	Handled  bool     `json:"handled,omitempty"`
	Config   *Config  `json:"config,omitempty"`
	Prompt   string   `json:"prompt,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Models   []string `json:"models,omitempty"`
	Error    *Error   `json:"error,omitempty"`
}

// Error describes a daemon-side error returned to the editor.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "unknown_view", "bad_request").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnknownView   = "unknown_view"
	ErrCodeNotConfigured = "not_configured"
	ErrCodeAPI           = "api_error"
	ErrCodeConfig        = "config_error"
)

// NewError builds an error message for the given view.
func NewError(viewID, code, msg string) *Message {
	return &Message{Type: MessageError, ViewID: viewID, Error: &Error{Code: code, Message: msg}}
}
