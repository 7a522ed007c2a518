package session

import "strings"

// Reason explains why Reconcile changed a session.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonAdvanced      Reason = "advanced"
	ReasonEditElsewhere Reason = "edit_elsewhere"
	ReasonDiverged      Reason = "diverged"
	ReasonCursorMoved   Reason = "cursor_moved"
)

// Reconcile re-validates s against one transaction. It must run synchronously
// after the edit is applied and before the next render.
//
// A suggestion survives only while the user types forward exactly at its
// anchor: a single pure insertion at the anchor whose text is a prefix of the
// remaining suggestion advances it, anything else drops it. Independently, a
// cursor that ends up away from the anchor drops it. Accept transactions are
// skipped; the acceptance handler updates the session itself.
func Reconcile(s Session, tx Transaction) (Session, Reason) {
	if !s.active || tx.Origin == OriginAccept {
		return s, ReasonNone
	}

	reason := ReasonNone
	if tx.DocChanged {
		edits := tx.effectiveEdits()
		if len(edits) > 0 {
			s, reason = reconcileEdits(s, edits)
		}
	}

	if s.active && tx.Cursor != s.anchor {
		return s.Invalidate(), ReasonCursorMoved
	}
	return s, reason
}

func reconcileEdits(s Session, edits []Edit) (Session, Reason) {
	if len(edits) != 1 {
		return s.Invalidate(), ReasonEditElsewhere
	}
	e := edits[0]
	if e.From != s.anchor || e.To != s.anchor {
		return s.Invalidate(), ReasonEditElsewhere
	}
	if !strings.HasPrefix(s.remaining, e.Inserted) {
		return s.Invalidate(), ReasonDiverged
	}
	return s.Advance(len(e.Inserted)), ReasonAdvanced
}
