package suggest

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	inkling "github.com/Paranoid-AF/inkling"
	"github.com/Paranoid-AF/inkling/generate"
	"github.com/Paranoid-AF/inkling/session"
)

// Trigger is what asked for a fetch.
type Trigger int

const (
	// Auto fires after a document change, debounced and gated by the
	// activation rules.
	Auto Trigger = iota
	// Manual fires immediately and skips the activation rules.
	Manual
)

func (t Trigger) String() string {
	if t == Manual {
		return "manual"
	}
	return "auto"
}

// fetchState is everything a fetch needs from the view, captured under the
// view lock when it is scheduled.
type fetchState struct {
	Snapshot   session.Snapshot
	Cursor     int
	Path       string
	DocChanged bool
	Active     bool
	Settings   inkling.Settings
}

// fetchFunc starts a generation for a cursor in text.
type fetchFunc func(ctx context.Context, path, text string, cursor int) generate.Stream

// deliverFunc hands one cumulative chunk to the view. It returns false when
// the stream should stop.
type deliverFunc func(ticket uint64, st fetchState, content string, first bool) bool

// failFunc tells the view that the stream for ticket failed.
type failFunc func(ticket uint64)

// Controller owns the generation for one view: at most one fetch is pending
// or streaming at a time, and only the latest ticket's chunks reach the view.
type Controller struct {
	ticket atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	stream generate.Stream
	closed bool
	wg     sync.WaitGroup

	fetch    fetchFunc
	deliver  deliverFunc
	fail     failFunc
	provider func() string
	metrics  *Metrics
}

func newController(fetch fetchFunc, deliver deliverFunc, fail failFunc, provider func() string) *Controller {
	return &Controller{
		fetch:    fetch,
		deliver:  deliver,
		fail:     fail,
		provider: provider,
		metrics:  NewMetrics(),
	}
}

// Current reports whether ticket is still the latest one issued.
func (c *Controller) Current(ticket uint64) bool {
	return c.ticket.Load() == ticket
}

// Schedule issues a new ticket and starts a fetch for it, superseding any
// pending or streaming one. An automatic schedule that fails the gate
// still supersedes the current fetch when the document changed, unless the
// user is typing through an active suggestion. It reports whether a fetch
// was started.
func (c *Controller) Schedule(trigger Trigger, st fetchState) bool {
	if trigger == Auto && !autoAllowed(st) {
		if st.DocChanged && !st.Active {
			c.Cancel()
		}
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	ticket := c.ticket.Add(1)
	c.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.metrics.TicketsTotal.WithLabelValues(trigger.String()).Inc()

	c.wg.Add(1)
	go c.run(ctx, ticket, trigger, st)
	return true
}

func autoAllowed(st fetchState) bool {
	return st.Settings.AutoTrigger &&
		st.DocChanged &&
		!st.Active &&
		Activate(st.Settings.Activation, st.Snapshot.Text, st.Cursor)
}

// Cancel supersedes the current fetch without starting another.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticket.Add(1)
	c.stopLocked()
}

// Close cancels the current fetch, refuses new ones and waits for the
// fetch goroutine to exit. It must not be called with the view lock held.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.ticket.Add(1)
	c.stopLocked()
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.stream != nil {
		c.stream.Abort()
		c.stream = nil
	}
}

func (c *Controller) run(ctx context.Context, ticket uint64, trigger Trigger, st fetchState) {
	defer c.wg.Done()

	if trigger == Auto && st.Settings.Delay > 0 {
		timer := time.NewTimer(st.Settings.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
	if !c.Current(ticket) {
		return
	}

	start := time.Now()
	stream := c.fetch(ctx, st.Path, st.Snapshot.Text, st.Cursor)
	defer stream.Abort()

	c.mu.Lock()
	if !c.Current(ticket) {
		c.mu.Unlock()
		return
	}
	c.stream = stream
	c.mu.Unlock()

	first := true
	for stream.Next() {
		if !c.Current(ticket) {
			c.metrics.StaleChunksTotal.Inc()
			return
		}
		content := stream.Current()
		if content == "" {
			continue
		}
		if first {
			c.metrics.TimeToFirstChunk.Observe(time.Since(start).Seconds())
		}
		if !c.deliver(ticket, st, content, first) {
			return
		}
		first = false
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		name := c.provider()
		slog.Warn("generation failed", "path", st.Path, "provider", name, "trigger", trigger, "error", err)
		c.metrics.ProviderErrorsTotal.WithLabelValues(name).Inc()
		c.fail(ticket)
	}
}
