package domain

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepWithContext_WaitsOnClock(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	done := make(chan error, 1)
	go func() { done <- SleepWithContext(context.Background(), fakeClock, 20*time.Second) }()

	require.NoError(t, fakeClock.BlockUntilContext(context.Background(), 1))
	fakeClock.Advance(20 * time.Second)
	assert.NoError(t, <-done)
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SleepWithContext(ctx, clockwork.NewFakeClock(), time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, SleepWithContext(ctx, clockwork.NewFakeClock(), 0), context.Canceled)
}

func TestSleepWithContext_NonPositive(t *testing.T) {
	assert.NoError(t, SleepWithContext(context.Background(), clockwork.NewFakeClock(), 0))
}
