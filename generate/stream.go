package generate

import (
	"context"
	"errors"
	"sync"
)

// Stream yields the cumulative text of one generation. Each value returned
// by Current contains every earlier value as a prefix.
type Stream interface {
	// Next blocks until the next value is available. It returns false when
	// the generation finished, failed, or was aborted.
	Next() bool
	Current() string
	// Err reports the failure that ended the stream. Cancellation is not
	// an error.
	Err() error
	// Abort stops the generation. After Abort, Next returns false. Safe to
	// call more than once.
	Abort()
}

// EmitFunc hands one cumulative value to the consumer. It returns false
// once the stream was aborted and the producer should stop.
type EmitFunc func(cumulative string) bool

// NewStream runs produce in a goroutine and exposes what it emits as a
// Stream. Values are handed over unbuffered, so produce never runs ahead of
// the consumer by more than one value.
func NewStream(parent context.Context, produce func(ctx context.Context, emit EmitFunc) error) Stream {
	ctx, cancel := context.WithCancel(parent)
	s := &funcStream{
		ctx:    ctx,
		cancel: cancel,
		ch:     make(chan string),
	}
	go func() {
		defer close(s.ch)
		err := produce(ctx, s.emit)
		if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

type funcStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan string
	cur    string

	mu  sync.Mutex
	err error
}

func (s *funcStream) emit(v string) bool {
	select {
	case s.ch <- v:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *funcStream) Next() bool {
	if s.ctx.Err() != nil {
		return false
	}
	v, ok := <-s.ch
	if !ok || s.ctx.Err() != nil {
		return false
	}
	s.cur = v
	return true
}

func (s *funcStream) Current() string { return s.cur }

func (s *funcStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *funcStream) Abort() { s.cancel() }

// Static returns a stream that yields values in order and then ends.
func Static(ctx context.Context, values ...string) Stream {
	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		for _, v := range values {
			if !emit(v) {
				return nil
			}
		}
		return nil
	})
}

// Failed returns a stream that ends immediately with err.
func Failed(ctx context.Context, err error) Stream {
	return NewStream(ctx, func(context.Context, EmitFunc) error { return err })
}

// forward drains inner into emit, passing each value through transform. An
// empty transformed value is skipped. inner is always aborted on return.
func forward(inner Stream, emit EmitFunc, transform func(string) string) (last string, err error) {
	defer inner.Abort()
	for inner.Next() {
		v := inner.Current()
		if transform != nil {
			v = transform(v)
		}
		if v == "" || v == last {
			continue
		}
		last = v
		if !emit(v) {
			return last, nil
		}
	}
	return last, inner.Err()
}
