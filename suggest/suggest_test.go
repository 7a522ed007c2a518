package suggest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inkling "github.com/Paranoid-AF/inkling"
	"github.com/Paranoid-AF/inkling/document"
	"github.com/Paranoid-AF/inkling/generate"
	"github.com/Paranoid-AF/inkling/session"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// scriptProvider emits values in order. With a gate, every value after the
// first waits for the gate to be closed.
type scriptProvider struct {
	values []string
	err    error
	gate   chan struct{}

	calls   atomic.Int32
	aborted atomic.Int32
	mu      sync.Mutex
	reqs    []*generate.Request
}

func (p *scriptProvider) Generate(ctx context.Context, req *generate.Request) generate.Stream {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	p.calls.Add(1)
	return generate.NewStream(ctx, func(ctx context.Context, emit generate.EmitFunc) error {
		for i, v := range p.values {
			if i > 0 && p.gate != nil {
				select {
				case <-p.gate:
				case <-ctx.Done():
					p.aborted.Add(1)
					return ctx.Err()
				}
			}
			if !emit(v) {
				p.aborted.Add(1)
				return nil
			}
		}
		return p.err
	})
}

func (p *scriptProvider) ListModels(context.Context) ([]string, error) {
	return []string{"script-1"}, nil
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) lastRequest() *generate.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reqs) == 0 {
		return nil
	}
	return p.reqs[len(p.reqs)-1]
}

// recorder keeps every rendered state and accept insertion.
type recorder struct {
	mu      sync.Mutex
	states  []State
	inserts []session.Transaction
}

func (r *recorder) Render(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) Inserted(tx session.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts = append(r.inserts, tx)
}

func (r *recorder) renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return State{}
	}
	return r.states[len(r.states)-1]
}

func testConfig() *inkling.Config {
	cfg := inkling.DefaultConfig()
	cfg.Completion.DelayMs = 0
	cfg.Completion.RateLimit = 0
	cfg.Completion.CacheTTLMinutes = 0
	cfg.Embedding = inkling.EmbeddingConfig{}
	return cfg
}

func newTestView(t *testing.T, cfg *inkling.Config, p *scriptProvider, text string) (*View, *document.Buffer, *recorder) {
	t.Helper()
	e := NewEngine(cfg, WithProvider(p), WithPrompt("Continue the text."))
	buf := document.NewBuffer(text)
	rec := &recorder{}
	v := e.NewView("", buf, "notes.md", rec)
	t.Cleanup(func() {
		v.Close()
		e.Close()
	})
	return v, buf, rec
}

func remaining(v *View) string {
	text, _ := v.CurrentRemainingText()
	return text
}

func TestAutoFetchPopulatesAndWordAccept(t *testing.T) {
	p := &scriptProvider{values: []string{"on", "on the", "on the mat."}}
	v, buf, rec := newTestView(t, testConfig(), p, "")

	v.Dispatch(buf.Type("The cat sat "))

	require.Eventually(t, func() bool { return remaining(v) == "on the mat." }, waitFor, tick)
	assert.Equal(t, "The cat sat ", p.lastRequest().Before)
	assert.Equal(t, State{Remaining: "on the mat.", Anchor: 12, Visible: true}, rec.last())

	require.True(t, v.Accept("Tab"))
	assert.Equal(t, "The cat sat on ", buf.Text())
	assert.Equal(t, 15, buf.Cursor())
	assert.Equal(t, "the mat.", remaining(v))
	assert.Equal(t, State{Remaining: "the mat.", Anchor: 15, Visible: true}, rec.last())

	require.Len(t, rec.inserts, 1)
	assert.Equal(t, session.OriginAccept, rec.inserts[0].Origin)
	assert.Equal(t, []session.Edit{{From: 12, To: 12, Inserted: "on "}}, rec.inserts[0].Edits)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestAcceptKeyIsCaseInsensitive(t *testing.T) {
	p := &scriptProvider{values: []string{"on the mat."}}
	v, buf, _ := newTestView(t, testConfig(), p, "")
	v.Dispatch(buf.Type("The cat sat "))
	require.Eventually(t, func() bool { return remaining(v) != "" }, waitFor, tick)

	assert.False(t, v.Accept("Enter"))
	assert.True(t, v.Accept("tab"))
}

func TestAcceptNotHandledWithoutSuggestion(t *testing.T) {
	p := &scriptProvider{}
	v, buf, rec := newTestView(t, testConfig(), p, "The cat sat ")

	assert.False(t, v.Accept("Tab"))
	assert.Equal(t, "The cat sat ", buf.Text())
	assert.Empty(t, rec.inserts)
}

func TestTypingForwardAdvancesWhileStreaming(t *testing.T) {
	p := &scriptProvider{values: []string{"on", "on the mat."}, gate: make(chan struct{})}
	v, buf, _ := newTestView(t, testConfig(), p, "")

	v.Dispatch(buf.Type("The cat sat "))
	require.Eventually(t, func() bool { return remaining(v) == "on" }, waitFor, tick)

	v.Dispatch(buf.Type("o"))
	assert.Equal(t, "n", remaining(v))

	close(p.gate)
	require.Eventually(t, func() bool { return remaining(v) == "n the mat." }, waitFor, tick)
	assert.EqualValues(t, 1, p.calls.Load(), "an active suggestion suppresses automatic fetches")
}

func TestDivergingEditInvalidates(t *testing.T) {
	p := &scriptProvider{values: []string{"on the mat."}}
	cfg := testConfig()
	cfg.Completion.AutoTrigger = false
	v, buf, rec := newTestView(t, cfg, p, "The cat sat ")

	require.True(t, v.Trigger())
	require.Eventually(t, func() bool { return remaining(v) == "on the mat." }, waitFor, tick)

	v.Dispatch(buf.Type("x"))
	_, ok := v.CurrentRemainingText()
	assert.False(t, ok)
	assert.False(t, rec.last().Visible)
}

func TestCursorMoveInvalidates(t *testing.T) {
	p := &scriptProvider{values: []string{"on the mat."}}
	v, buf, _ := newTestView(t, testConfig(), p, "")

	v.Dispatch(buf.Type("The cat sat "))
	require.Eventually(t, func() bool { return remaining(v) != "" }, waitFor, tick)

	v.Dispatch(buf.Left())
	assert.False(t, v.Session().Active())
	assert.EqualValues(t, 1, p.calls.Load(), "cursor moves never fetch")
}

func TestManualTriggerSupersedesInFlightStream(t *testing.T) {
	p := &scriptProvider{values: []string{"on", "on the"}, gate: make(chan struct{})}
	v, buf, _ := newTestView(t, testConfig(), p, "")

	v.Dispatch(buf.Type("The cat sat "))
	require.Eventually(t, func() bool { return remaining(v) == "on" }, waitFor, tick)

	require.True(t, v.Trigger())
	require.Eventually(t, func() bool { return p.aborted.Load() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return p.calls.Load() == 2 && remaining(v) == "on" }, waitFor, tick)

	close(p.gate)
	require.Eventually(t, func() bool { return remaining(v) == "on the" }, waitFor, tick)
}

func TestCancelDropsLaterChunks(t *testing.T) {
	p := &scriptProvider{values: []string{"on", "on the"}, gate: make(chan struct{})}
	v, buf, rec := newTestView(t, testConfig(), p, "")

	v.Dispatch(buf.Type("The cat sat "))
	require.Eventually(t, func() bool { return remaining(v) == "on" }, waitFor, tick)

	v.Cancel()
	assert.False(t, rec.last().Visible)
	require.Eventually(t, func() bool { return p.aborted.Load() == 1 }, waitFor, tick)

	close(p.gate)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, v.Session().Active())
}

func TestStaleTicketIsDropped(t *testing.T) {
	p := &scriptProvider{}
	v, buf, _ := newTestView(t, testConfig(), p, "The cat sat ")

	st := v.fetchStateLocked(true)
	stale := v.ctrl.ticket.Load()
	v.ctrl.Cancel()

	before := testutil.ToFloat64(NewMetrics().StaleChunksTotal)
	assert.False(t, v.deliver(stale, st, "on the mat.", true))
	assert.False(t, v.Session().Active())
	assert.Equal(t, before+1, testutil.ToFloat64(NewMetrics().StaleChunksTotal))
	assert.Equal(t, "The cat sat ", buf.Text())
}

func TestFirstChunkRequiresUnchangedDocument(t *testing.T) {
	p := &scriptProvider{}
	v, buf, _ := newTestView(t, testConfig(), p, "The cat sat ")

	st := v.fetchStateLocked(true)
	ticket := v.ctrl.ticket.Load()

	buf.Type("x")
	assert.False(t, v.deliver(ticket, st, "on the mat.", true))
	assert.False(t, v.Session().Active())

	st = v.fetchStateLocked(true)
	assert.True(t, v.deliver(ticket, st, "on the", true))
	assert.True(t, v.deliver(ticket, st, "on the mat.", false))
	assert.Equal(t, "on the mat.", remaining(v))

	// A later chunk that rewrites the text is ignored.
	assert.True(t, v.deliver(ticket, st, "in a hat.", false))
	assert.Equal(t, "on the mat.", remaining(v))
}

func TestDebounceKeepsOnlyLastSchedule(t *testing.T) {
	p := &scriptProvider{values: []string{"sat on the mat."}}
	cfg := testConfig()
	cfg.Completion.DelayMs = 100
	v, buf, _ := newTestView(t, cfg, p, "")

	v.Dispatch(buf.Type("The "))
	v.Dispatch(buf.Type("cat "))

	require.Eventually(t, func() bool { return remaining(v) == "sat on the mat." }, waitFor, tick)
	assert.EqualValues(t, 1, p.calls.Load())
	assert.Equal(t, "The cat ", p.lastRequest().Before)
}

func TestAutoTriggerGating(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*inkling.Config)
		text   string
	}{
		{"auto trigger off", func(c *inkling.Config) { c.Completion.AutoTrigger = false }, "The cat sat "},
		{"empty line", func(c *inkling.Config) {}, "The cat sat\n"},
		{"disabled profile", func(c *inkling.Config) {
			c.Profiles = []inkling.Profile{{Pattern: "*.md", Disabled: true}}
		}, "The cat sat "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptProvider{values: []string{"on the mat."}}
			cfg := testConfig()
			tt.mutate(cfg)
			v, buf, _ := newTestView(t, cfg, p, "")

			v.Dispatch(buf.Type(tt.text))
			time.Sleep(30 * time.Millisecond)
			assert.EqualValues(t, 0, p.calls.Load())

			// Manual triggers skip the gate.
			require.True(t, v.Trigger())
			require.Eventually(t, func() bool { return p.calls.Load() == 1 }, waitFor, tick)
		})
	}
}

func TestAcceptAllFetchesContinuation(t *testing.T) {
	p := &scriptProvider{values: []string{"on the mat."}}
	cfg := testConfig()
	cfg.Completion.SplitStrategy = "full"
	v, buf, _ := newTestView(t, cfg, p, "")

	v.Dispatch(buf.Type("The cat sat "))
	require.Eventually(t, func() bool { return remaining(v) != "" }, waitFor, tick)

	require.True(t, v.Accept("Tab"))
	assert.Equal(t, "The cat sat on the mat.", buf.Text())
	require.Eventually(t, func() bool { return p.calls.Load() == 2 }, waitFor, tick)
	assert.Equal(t, "The cat sat on the mat.", p.lastRequest().Before)
}

func TestSingleShotSkipsContinuation(t *testing.T) {
	p := &scriptProvider{values: []string{"on the mat."}}
	cfg := testConfig()
	cfg.Completion.SplitStrategy = "full"
	cfg.Completion.SingleShot = true
	v, buf, _ := newTestView(t, cfg, p, "")

	v.Dispatch(buf.Type("The cat sat "))
	require.Eventually(t, func() bool { return remaining(v) != "" }, waitFor, tick)

	require.True(t, v.Accept("Tab"))
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, p.calls.Load())
	assert.False(t, v.Session().Active())
}

func TestProviderErrorIsSwallowed(t *testing.T) {
	p := &scriptProvider{err: errors.New("upstream 500")}
	v, buf, _ := newTestView(t, testConfig(), p, "")
	errs := NewMetrics().ProviderErrorsTotal.WithLabelValues("script")
	before := testutil.ToFloat64(errs)

	v.Dispatch(buf.Type("The cat sat "))
	require.Eventually(t, func() bool { return testutil.ToFloat64(errs) == before+1 }, waitFor, tick)
	assert.False(t, v.Session().Active())
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestProviderErrorClearsPartialSuggestion(t *testing.T) {
	p := &scriptProvider{values: []string{"on", "on the"}, err: errors.New("upstream 500"), gate: make(chan struct{})}
	v, buf, rec := newTestView(t, testConfig(), p, "")

	v.Dispatch(buf.Type("The cat sat "))
	require.Eventually(t, func() bool { return remaining(v) == "on" }, waitFor, tick)

	close(p.gate)
	require.Eventually(t, func() bool { return !v.Session().Active() }, waitFor, tick)
	assert.False(t, rec.last().Visible)
	assert.Equal(t, "The cat sat ", buf.Text())
}

func TestGatedEditSupersedesInFlightFetch(t *testing.T) {
	// The empty first value keeps the session inactive while the stream
	// waits on the gate.
	p := &scriptProvider{values: []string{"", "on the mat."}, gate: make(chan struct{})}
	v, buf, _ := newTestView(t, testConfig(), p, "")

	v.Dispatch(buf.Type("The cat sat "))
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, waitFor, tick)
	ticket := v.ctrl.ticket.Load()

	// A cursor at the start of a line fails the activation rules.
	v.Dispatch(buf.Type("\n"))
	assert.Greater(t, v.ctrl.ticket.Load(), ticket)
	require.Eventually(t, func() bool { return p.aborted.Load() == 1 }, waitFor, tick)

	close(p.gate)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, v.Session().Active())
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestCloseStopsEverything(t *testing.T) {
	p := &scriptProvider{values: []string{"on", "on the"}, gate: make(chan struct{})}
	v, buf, rec := newTestView(t, testConfig(), p, "")

	v.Dispatch(buf.Type("The cat sat "))
	require.Eventually(t, func() bool { return remaining(v) == "on" }, waitFor, tick)

	v.Close()
	require.Eventually(t, func() bool { return p.aborted.Load() == 1 }, waitFor, tick)
	renders := rec.renders()

	close(p.gate)
	v.Dispatch(buf.Type("x"))
	assert.False(t, v.Trigger())
	assert.False(t, v.Accept("Tab"))
	assert.Equal(t, renders, rec.renders())
	v.Close()
}

func TestNewViewAssignsID(t *testing.T) {
	e := NewEngine(testConfig(), WithProvider(&scriptProvider{}), WithPrompt("x"))
	defer e.Close()

	v := e.NewView("", document.NewBuffer(""), "a.md", nil)
	defer v.Close()
	assert.Len(t, v.ID(), 36)

	named := e.NewView("left", document.NewBuffer(""), "a.md", nil)
	defer named.Close()
	assert.Equal(t, "left", named.ID())
}

func TestEngineReloadAppliesSettings(t *testing.T) {
	e := NewEngine(testConfig(), WithProvider(&scriptProvider{}), WithPrompt("x"))
	defer e.Close()
	assert.Equal(t, "word", string(e.Settings("a.md").Strategy))

	cfg := testConfig()
	cfg.Completion.SplitStrategy = "sentence"
	e.Reload(cfg)
	assert.Equal(t, "sentence", string(e.Settings("a.md").Strategy))
	assert.Equal(t, "script", e.ProviderName())

	models, err := e.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"script-1"}, models)
}

func TestEngineWithoutCredentialsStillServesViews(t *testing.T) {
	cfg := testConfig()
	cfg.Generation.Provider = "openai"
	cfg.Generation.APIKey = ""
	e := NewEngine(cfg, WithPrompt("x"))
	defer e.Close()

	assert.Equal(t, "unconfigured", e.ProviderName())
	_, err := e.ListModels(context.Background())
	assert.ErrorIs(t, err, generate.ErrNotConfigured)
}
