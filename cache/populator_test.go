package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPopulator_WritesInBackground(t *testing.T) {
	client := NewMockRedisClient()
	stats := NewStatsCollector(10, nil)
	client.On("Set", mock.Anything, "entity:1", []byte(`{"id":"1"}`), time.Minute).Return(nil).Once()

	p := NewPopulator(client, stats, nil, 2, 8, time.Second)
	require.NoError(t, p.Submit("entity:1", []byte(`{"id":"1"}`), time.Minute))
	require.NoError(t, p.Close(context.Background()))

	app, _ := stats.Snapshot(0)
	assert.Equal(t, uint64(1), app.Sets)
	assert.Zero(t, app.Errors)
	client.AssertExpectations(t)
}

func TestPopulator_WriteFailureIsCounted(t *testing.T) {
	client := NewMockRedisClient()
	stats := NewStatsCollector(10, nil)
	client.On("Set", mock.Anything, "entity:1", mock.Anything, time.Minute).
		Return(errors.New("connection refused")).Once()

	p := NewPopulator(client, stats, nil, 1, 8, time.Second)
	require.NoError(t, p.Submit("entity:1", []byte("{}"), time.Minute))
	require.NoError(t, p.Close(context.Background()))

	app, _ := stats.Snapshot(0)
	assert.Zero(t, app.Sets)
	assert.Equal(t, uint64(1), app.Errors)
}

func TestPopulator_WriteIsDetachedFromCaller(t *testing.T) {
	client := NewMockRedisClient()
	stats := NewStatsCollector(10, nil)

	deadlines := make(chan bool, 1)
	client.On("Set", mock.Anything, "entity:1", mock.Anything, time.Minute).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			deadlines <- ok && ctx.Err() == nil
		}).Return(nil).Once()

	p := NewPopulator(client, stats, nil, 1, 1, time.Second)
	require.NoError(t, p.Submit("entity:1", []byte("{}"), time.Minute))
	require.NoError(t, p.Close(context.Background()))

	assert.True(t, <-deadlines, "write runs under its own live timeout")
}

func TestPopulator_QueueFullDropsJob(t *testing.T) {
	client := NewMockRedisClient()
	stats := NewStatsCollector(10, nil)

	started := make(chan struct{}, 4)
	release := make(chan struct{})
	client.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			started <- struct{}{}
			<-release
		}).Return(nil)

	p := NewPopulator(client, stats, nil, 1, 1, time.Second)

	require.NoError(t, p.Submit("entity:1", []byte("{}"), time.Minute))
	<-started

	require.NoError(t, p.Submit("entity:2", []byte("{}"), time.Minute))
	assert.Equal(t, 1, p.Pending())

	err := p.Submit("entity:3", []byte("{}"), time.Minute)
	assert.ErrorIs(t, err, ErrPopulateQueueFull)

	app, _ := stats.Snapshot(0)
	assert.Equal(t, uint64(1), app.Errors)

	close(release)
	require.NoError(t, p.Close(context.Background()))

	app, _ = stats.Snapshot(0)
	assert.Equal(t, uint64(2), app.Sets)
	client.AssertNumberOfCalls(t, "Set", 2)
}

func TestPopulator_SubmitAfterClose(t *testing.T) {
	client := NewMockRedisClient()
	stats := NewStatsCollector(10, nil)

	p := NewPopulator(client, stats, nil, 1, 1, time.Second)
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()), "close is idempotent")

	err := p.Submit("entity:1", []byte("{}"), time.Minute)
	assert.ErrorIs(t, err, ErrPopulatorClosed)

	app, _ := stats.Snapshot(0)
	assert.Equal(t, uint64(1), app.Errors)
	client.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPopulator_CloseGivesUpAtDeadline(t *testing.T) {
	client := NewMockRedisClient()
	stats := NewStatsCollector(10, nil)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	client.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			started <- struct{}{}
			<-release
		}).Return(nil)

	p := NewPopulator(client, stats, nil, 1, 1, time.Second)
	require.NoError(t, p.Submit("entity:1", []byte("{}"), time.Minute))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
}
