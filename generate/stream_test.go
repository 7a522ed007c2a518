package generate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider yields a fixed sequence of cumulative values per call.
type fakeProvider struct {
	values []string
	err    error
	calls  atomic.Int32
	last   atomic.Pointer[Request]
}

func (f *fakeProvider) Generate(ctx context.Context, req *Request) Stream {
	f.calls.Add(1)
	f.last.Store(req)
	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		for _, v := range f.values {
			if !emit(v) {
				return nil
			}
		}
		return f.err
	})
}

func (f *fakeProvider) ListModels(context.Context) ([]string, error) { return []string{"fake-1"}, nil }

func (f *fakeProvider) Name() string { return "fake" }

func drain(s Stream) []string {
	var out []string
	for s.Next() {
		out = append(out, s.Current())
	}
	return out
}

func TestStreamYieldsInOrder(t *testing.T) {
	s := Static(context.Background(), "on", "on the", "on the mat.")
	assert.Equal(t, []string{"on", "on the", "on the mat."}, drain(s))
	assert.NoError(t, s.Err())
	assert.Equal(t, "on the mat.", s.Current())
	s.Abort()
}

func TestStreamError(t *testing.T) {
	boom := errors.New("boom")
	s := Failed(context.Background(), boom)
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), boom)
}

func TestStreamAbortStopsYields(t *testing.T) {
	released := make(chan struct{})
	s := NewStream(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		if !emit("a") {
			return nil
		}
		<-released
		emit("ab")
		return nil
	})

	require.True(t, s.Next())
	assert.Equal(t, "a", s.Current())

	s.Abort()
	s.Abort()
	close(released)
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
}

func TestStreamAbortUnblocksProducer(t *testing.T) {
	exited := make(chan struct{})
	s := NewStream(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		defer close(exited)
		for {
			if !emit("x") {
				return nil
			}
		}
	})
	require.True(t, s.Next())
	s.Abort()

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("producer did not exit after Abort")
	}
}

func TestStreamCancellationIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
}

func TestForwardSkipsEmptyAndDuplicates(t *testing.T) {
	inner := Static(context.Background(), "", "a", "a", "ab")
	var got []string
	last, err := forward(inner, func(v string) bool {
		got = append(got, v)
		return true
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", last)
	assert.Equal(t, []string{"a", "ab"}, got)
}
