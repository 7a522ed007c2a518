package document

import (
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Paranoid-AF/inkling/session"
)

// Diff returns the edits that turn old into new, in old's byte offsets.
// An adjacent delete and insert are merged into one replacing edit.
func Diff(old, new string) []session.Edit {
	if old == new {
		return nil
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new, false)

	var edits []session.Edit
	offset := 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			offset += len(d.Text)
		case diffmatchpatch.DiffDelete:
			edits = append(edits, session.Edit{From: offset, To: offset + len(d.Text)})
			offset += len(d.Text)
		case diffmatchpatch.DiffInsert:
			if n := len(edits); n > 0 && edits[n-1].To == offset && edits[n-1].Inserted == "" {
				edits[n-1].Inserted = d.Text
				continue
			}
			edits = append(edits, session.Edit{From: offset, To: offset, Inserted: d.Text})
		}
	}
	return edits
}

// alignInsertion moves a pure insertion so it ends at the cursor when that
// produces the same text. Typing "l" into "al|lo" diffs as an insert at 3;
// the user actually typed at 2.
func alignInsertion(old string, e session.Edit, cursor int) session.Edit {
	if e.From != e.To || e.Inserted == "" {
		return e
	}
	at := cursor - len(e.Inserted)
	if at == e.From || at < 0 || at > len(old) {
		return e
	}
	if old[:at]+e.Inserted+old[at:] != old[:e.From]+e.Inserted+old[e.From:] {
		return e
	}
	return session.Edit{From: at, To: at, Inserted: e.Inserted}
}
