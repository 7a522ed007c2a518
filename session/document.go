package session

// Snapshot is the exact document content a suggestion was generated against.
type Snapshot struct {
	Text    string `json:"text"`
	Version int    `json:"version"`
}

// Edit is one applied change, in pre-edit byte offsets.
// A pure insertion has From == To; a pure deletion has an empty Inserted.
type Edit struct {
	From     int    `json:"from"`
	To       int    `json:"to"`
	Inserted string `json:"inserted,omitempty"`
}

// IsNoop reports whether the edit changes nothing.
func (e Edit) IsNoop() bool {
	return e.From == e.To && e.Inserted == ""
}

// Origin tells the reconciler who produced a transaction.
type Origin int

const (
	// OriginUser covers typing, deletions, paste and programmatic edits.
	OriginUser Origin = iota
	// OriginAccept marks the insertion performed by accepting a suggestion.
	OriginAccept
)

// Transaction is one change notification from the document: the set of
// applied edits and the resulting cursor.
type Transaction struct {
	Edits      []Edit
	Cursor     int
	DocChanged bool
	Origin     Origin
}

// effectiveEdits drops edits that do not change the document.
func (tx Transaction) effectiveEdits() []Edit {
	var out []Edit
	for _, e := range tx.Edits {
		if !e.IsNoop() {
			out = append(out, e)
		}
	}
	return out
}
