package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const p = 12

func activeAt(text string) Session {
	return Empty().Populate(text, Snapshot{Text: "Hello, wor   ", Version: 1}, p)
}

func TestReconcileAdvancesOnMatchingInsert(t *testing.T) {
	s := activeAt("lo world")
	tx := Transaction{
		Edits:      []Edit{{From: p, To: p, Inserted: "lo"}},
		Cursor:     p + 2,
		DocChanged: true,
	}

	got, reason := Reconcile(s, tx)
	rem, ok := got.Remaining()
	anchor, _ := got.Anchor()
	assert.True(t, ok)
	assert.Equal(t, " world", rem)
	assert.Equal(t, p+2, anchor)
	assert.Equal(t, ReasonAdvanced, reason)
}

func TestReconcileInvalidatesOnDivergingInsert(t *testing.T) {
	s := activeAt("lo world")
	tx := Transaction{
		Edits:      []Edit{{From: p, To: p, Inserted: "xx"}},
		Cursor:     p + 2,
		DocChanged: true,
	}

	got, reason := Reconcile(s, tx)
	_, ok := got.Remaining()
	assert.False(t, ok)
	assert.Equal(t, ReasonDiverged, reason)
}

func TestReconcileWholeRemainingTypedResets(t *testing.T) {
	s := activeAt("lo")
	tx := Transaction{
		Edits:      []Edit{{From: p, To: p, Inserted: "lo"}},
		Cursor:     p + 2,
		DocChanged: true,
	}

	got, _ := Reconcile(s, tx)
	assert.Equal(t, Empty(), got)
}

func TestReconcileInvalidates(t *testing.T) {
	tests := []struct {
		name   string
		tx     Transaction
		reason Reason
	}{
		{
			name: "insert elsewhere",
			tx: Transaction{
				Edits:      []Edit{{From: 2, To: 2, Inserted: "l"}},
				Cursor:     p,
				DocChanged: true,
			},
			reason: ReasonEditElsewhere,
		},
		{
			name: "deletion at anchor",
			tx: Transaction{
				Edits:      []Edit{{From: p - 1, To: p}},
				Cursor:     p - 1,
				DocChanged: true,
			},
			reason: ReasonEditElsewhere,
		},
		{
			name: "replacement at anchor",
			tx: Transaction{
				Edits:      []Edit{{From: p, To: p + 1, Inserted: "l"}},
				Cursor:     p + 1,
				DocChanged: true,
			},
			reason: ReasonEditElsewhere,
		},
		{
			name: "two edits",
			tx: Transaction{
				Edits: []Edit{
					{From: p, To: p, Inserted: "l"},
					{From: 0, To: 0, Inserted: "#"},
				},
				Cursor:     p + 2,
				DocChanged: true,
			},
			reason: ReasonEditElsewhere,
		},
		{
			name:   "cursor jump without edit",
			tx:     Transaction{Cursor: 3},
			reason: ReasonCursorMoved,
		},
		{
			name: "matching insert but cursor elsewhere",
			tx: Transaction{
				Edits:      []Edit{{From: p, To: p, Inserted: "l"}},
				Cursor:     0,
				DocChanged: true,
			},
			reason: ReasonCursorMoved,
		},
		{
			name: "case differs",
			tx: Transaction{
				Edits:      []Edit{{From: p, To: p, Inserted: "L"}},
				Cursor:     p + 1,
				DocChanged: true,
			},
			reason: ReasonDiverged,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Reconcile(activeAt("lo world"), tt.tx)
			assert.False(t, got.Active())
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestReconcileLeavesSessionOnCursorStay(t *testing.T) {
	s := activeAt("lo world")
	got, reason := Reconcile(s, Transaction{Cursor: p})
	assert.Equal(t, s, got)
	assert.Equal(t, ReasonNone, reason)
}

func TestReconcileIgnoresNoopEdits(t *testing.T) {
	s := activeAt("lo world")
	tx := Transaction{
		Edits:      []Edit{{From: 4, To: 4}, {From: p, To: p, Inserted: "l"}},
		Cursor:     p + 1,
		DocChanged: true,
	}
	got, _ := Reconcile(s, tx)
	rem, _ := got.Remaining()
	assert.Equal(t, "o world", rem)
}

func TestReconcileSkipsAcceptTransactions(t *testing.T) {
	s := activeAt("lo world")
	tx := Transaction{
		Edits:      []Edit{{From: p, To: p, Inserted: "lo "}},
		Cursor:     p + 3,
		DocChanged: true,
		Origin:     OriginAccept,
	}
	got, reason := Reconcile(s, tx)
	assert.Equal(t, s, got)
	assert.Equal(t, ReasonNone, reason)
}

func TestReconcileEmptyIsNoop(t *testing.T) {
	tx := Transaction{Edits: []Edit{{From: 0, To: 0, Inserted: "x"}}, Cursor: 1, DocChanged: true}
	got, reason := Reconcile(Empty(), tx)
	assert.Equal(t, Empty(), got)
	assert.Equal(t, ReasonNone, reason)
}
