package suggest

import "github.com/Paranoid-AF/inkling/session"

// State is what a renderer paints: the remaining suggestion text at its
// anchor, or nothing when Visible is false.
type State struct {
	Remaining string `json:"remaining"`
	Anchor    int    `json:"anchor"`
	Visible   bool   `json:"visible"`
}

func stateOf(s session.Session) State {
	text, ok := s.Remaining()
	if !ok {
		return State{}
	}
	anchor, _ := s.Anchor()
	return State{Remaining: text, Anchor: anchor, Visible: true}
}

// Renderer paints ghost text. Render is called with the view lock held and
// must not call back into the view.
type Renderer interface {
	Render(State)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(State)

func (f RendererFunc) Render(s State) { f(s) }

// InsertObserver is implemented by renderers whose host applies accepted
// text itself. Inserted is called with the accept transaction before the
// view renders the advanced session.
type InsertObserver interface {
	Inserted(tx session.Transaction)
}

type nopRenderer struct{}

func (nopRenderer) Render(State) {}
