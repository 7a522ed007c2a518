package suggest

import (
	"log/slog"
	"sync"

	"github.com/Paranoid-AF/inkling/session"
)

// Document is the editor buffer a view suggests into.
type Document interface {
	Snapshot() session.Snapshot
	Cursor() int
	// Insert applies text at pos, moves the cursor past it and returns the
	// resulting transaction.
	Insert(pos int, text string) session.Transaction
}

// View is the suggestion state of one editor view. It owns the session and
// replaces it wholesale under mu; the controller, the reconciler and the
// acceptance handler are the only writers.
type View struct {
	id     string
	path   string
	engine *Engine

	mu       sync.Mutex
	doc      Document
	sess     session.Session
	shown    State
	renderer Renderer
	closed   bool

	ctrl    *Controller
	metrics *Metrics
}

func newView(e *Engine, id string, doc Document, path string, r Renderer) *View {
	if r == nil {
		r = nopRenderer{}
	}
	v := &View{
		id:       id,
		path:     path,
		engine:   e,
		doc:      doc,
		renderer: r,
		metrics:  NewMetrics(),
	}
	v.ctrl = newController(e.fetch, v.deliver, v.fail, e.ProviderName)
	v.metrics.ActiveViews.Inc()
	return v
}

// ID returns the view id.
func (v *View) ID() string { return v.id }

// Path returns the document path the view was opened with.
func (v *View) Path() string { return v.path }

// Session returns the current session value.
func (v *View) Session() session.Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sess
}

// CurrentRemainingText returns the suggestion text still to be accepted.
func (v *View) CurrentRemainingText() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sess.Remaining()
}

// Dispatch reconciles the session with a transaction the document has
// already applied, renders the result and schedules an automatic fetch.
// Accept transactions are ignored; Accept updates the session itself.
func (v *View) Dispatch(tx session.Transaction) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || tx.Origin == session.OriginAccept {
		return
	}

	next, reason := session.Reconcile(v.sess, tx)
	switch reason {
	case session.ReasonNone, session.ReasonAdvanced:
	default:
		slog.Debug("suggestion invalidated", "view", v.id, "reason", reason)
		v.metrics.InvalidationsTotal.WithLabelValues(string(reason)).Inc()
	}
	v.setSession(next)
	v.ctrl.Schedule(Auto, v.fetchStateLocked(tx.DocChanged))
}

// Trigger clears any suggestion and fetches a new one immediately. It
// reports whether a fetch was started.
func (v *View) Trigger() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	v.setSession(v.sess.Reset())
	return v.ctrl.Schedule(Manual, v.fetchStateLocked(false))
}

// Cancel dismisses the suggestion and aborts any pending generation.
func (v *View) Cancel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if v.sess.Active() {
		v.metrics.InvalidationsTotal.WithLabelValues("cancelled").Inc()
	}
	v.setSession(v.sess.Reset())
	v.ctrl.Cancel()
}

// Close aborts generation and detaches the view. Nothing is rendered
// afterwards.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.sess = v.sess.Reset()
	v.mu.Unlock()

	v.ctrl.Close()
	v.metrics.ActiveViews.Dec()
}

func (v *View) fetchStateLocked(docChanged bool) fetchState {
	return fetchState{
		Snapshot:   v.doc.Snapshot(),
		Cursor:     v.doc.Cursor(),
		Path:       v.path,
		DocChanged: docChanged,
		Active:     v.sess.Active(),
		Settings:   v.engine.Settings(v.path),
	}
}

// setSession replaces the session and renders when the visible state changed.
func (v *View) setSession(next session.Session) {
	v.sess = next
	st := stateOf(next)
	if st == v.shown {
		return
	}
	v.shown = st
	v.renderer.Render(st)
}

// deliver applies one chunk of the stream for ticket. The first chunk
// populates the session only if the document is still exactly what the
// request saw; later chunks extend it.
func (v *View) deliver(ticket uint64, st fetchState, content string, first bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || !v.ctrl.Current(ticket) {
		v.metrics.StaleChunksTotal.Inc()
		return false
	}

	if first {
		if v.sess.Active() {
			return false
		}
		snap := v.doc.Snapshot()
		if snap.Version != st.Snapshot.Version || v.doc.Cursor() != st.Cursor {
			slog.Debug("document moved on, dropping suggestion", "view", v.id,
				"version", snap.Version, "requested", st.Snapshot.Version)
			return false
		}
		next := v.sess.Populate(content, snap, st.Cursor)
		if !next.Active() {
			return false
		}
		v.metrics.SuggestionsShown.Inc()
		v.setSession(next)
		return true
	}

	if !v.sess.Active() {
		return false
	}
	// A chunk that rewrites earlier text is dropped; the stream may still
	// catch up with a superset.
	v.setSession(v.sess.Extend(content))
	return true
}

// fail clears a suggestion whose stream broke off. Sessions belonging to a
// newer ticket are left alone.
func (v *View) fail(ticket uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || !v.ctrl.Current(ticket) || !v.sess.Active() {
		return
	}
	v.metrics.InvalidationsTotal.WithLabelValues("provider_error").Inc()
	v.setSession(v.sess.Reset())
}
