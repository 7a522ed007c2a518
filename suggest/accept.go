package suggest

import (
	"strings"

	"github.com/Paranoid-AF/inkling/segment"
	"github.com/Paranoid-AF/inkling/session"
)

// Accept handles the accept key. It inserts the next segment of the
// suggestion at its anchor and advances the session past it. Once the
// suggestion is used up a continuation is fetched, unless the view is
// configured for single-shot suggestions.
//
// Accept reports false when the key should fall through to the editor: it
// is not the accept key, nothing is suggested, or the segment is empty.
func (v *View) Accept(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}

	settings := v.engine.Settings(v.path)
	if key == "" || !strings.EqualFold(key, settings.AcceptKey) {
		return false
	}
	remaining, ok := v.sess.Remaining()
	if !ok {
		return false
	}
	seg := segment.Segment(settings.Strategy, remaining)
	if seg.Accepted == "" {
		return false
	}
	anchor, _ := v.sess.Anchor()

	tx := v.doc.Insert(anchor, seg.Accepted)
	tx.Origin = session.OriginAccept
	if obs, ok := v.renderer.(InsertObserver); ok {
		obs.Inserted(tx)
	}

	next := v.sess.Advance(len(seg.Accepted))
	v.metrics.AcceptsTotal.WithLabelValues(string(settings.Strategy)).Inc()
	v.setSession(next)

	if !next.Active() && !settings.SingleShot {
		v.ctrl.Schedule(Manual, v.fetchStateLocked(true))
	}
	return true
}
