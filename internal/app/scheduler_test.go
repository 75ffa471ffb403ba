package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	calls int
	limit int
	err   error
}

func (f *fakeCompleter) CompleteEnded(_ context.Context, limit int) (int, error) {
	f.calls++
	f.limit = limit
	return 2, f.err
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(&fakeCompleter{}, 10, zap.NewNop())
	assert.Error(t, s.Start(context.Background(), "every now and then"))
}

func TestCompleteEndedPassesBatch(t *testing.T) {
	c := &fakeCompleter{}
	s := NewScheduler(c, 25, zap.NewNop())

	s.completeEnded(context.Background())
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, 25, c.limit)

	c.err = errors.New("db down")
	s.completeEnded(context.Background())
	assert.Equal(t, 2, c.calls)
}

func TestCompleteEndedSkipsAfterShutdown(t *testing.T) {
	c := &fakeCompleter{}
	s := NewScheduler(c, 25, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.completeEnded(ctx)
	assert.Zero(t, c.calls)
}
