package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingRunner struct {
	started chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, _ Options) (Report, error) {
	close(b.started)
	<-ctx.Done()
	return Report{Cancelled: true}, nil
}

func TestCoordinator_OneRunAtATime(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{})}
	c := NewCoordinator(runner)
	assert.False(t, c.Abort(), "nothing to abort")

	done := make(chan Report, 1)
	go func() {
		rep, _ := c.Start(context.Background(), DefaultOptions())
		done <- rep
	}()
	<-runner.started
	assert.True(t, c.Running())

	_, err := c.Start(context.Background(), DefaultOptions())
	assert.ErrorIs(t, err, ErrRunInProgress)

	assert.True(t, c.Abort())
	select {
	case rep := <-done:
		assert.True(t, rep.Cancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after abort")
	}
	require.Eventually(t, func() bool { return !c.Running() }, time.Second, 10*time.Millisecond)
}
