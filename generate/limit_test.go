package generate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimitedDisabled(t *testing.T) {
	p := &fakeProvider{}
	assert.Same(t, Provider(p), Limited(p, 0, 1))
}

func TestLimitedPassesThrough(t *testing.T) {
	p := &fakeProvider{values: []string{"a", "ab"}}
	l := Limited(p, 100, 1)
	assert.Equal(t, []string{"a", "ab"}, drain(l.Generate(context.Background(), &Request{})))
	assert.Equal(t, "fake", l.Name())
}

func TestLimitedAbortWhileWaiting(t *testing.T) {
	p := &fakeProvider{values: []string{"a"}}
	l := Limited(p, 0.001, 1)

	drain(l.Generate(context.Background(), &Request{}))
	assert.Equal(t, int32(1), p.calls.Load())

	// The bucket is empty now; the second start waits until aborted.
	s := l.Generate(context.Background(), &Request{})
	time.AfterFunc(20*time.Millisecond, s.Abort)
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
	assert.Equal(t, int32(1), p.calls.Load())
}
