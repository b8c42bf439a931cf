package memq

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-engine/internal/model"
)

func newItem(priority model.Priority) *model.QueueItem {
	return &model.QueueItem{
		NotificationID: uuid.New(),
		RecipientID:    uuid.New(),
		Channels:       []string{model.ChannelWebsocket},
		Priority:       priority,
	}
}

func TestQueue_HigherTiersDrainFirst(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(30 * time.Second)

	lowFirst := newItem(model.PriorityLow)
	crit := newItem(model.PriorityCritical)
	lowSecond := newItem(model.PriorityLow)

	require.NoError(t, q.Enqueue(ctx, lowFirst))
	require.NoError(t, q.Enqueue(ctx, crit))
	require.NoError(t, q.Enqueue(ctx, lowSecond))

	// The critical item jumps the queue; the two low items keep their
	// arrival order.
	batch, err := q.DequeueBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, crit.ID, batch[0].ID)
	assert.Equal(t, lowFirst.ID, batch[1].ID)

	batch, err = q.DequeueBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, lowSecond.ID, batch[0].ID)
}

func TestQueue_FIFOWithinTier(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(30 * time.Second)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		item := newItem(model.PriorityHigh)
		require.NoError(t, q.Enqueue(ctx, item))
		ids = append(ids, item.ID)
	}

	batch, err := q.DequeueBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, batch, 5)
	for i, item := range batch {
		assert.Equal(t, ids[i], item.ID)
	}
}

func TestQueue_DequeueIncrementsAttempts(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(30 * time.Second)

	item := newItem(model.PriorityMedium)
	require.NoError(t, q.Enqueue(ctx, item))

	batch, err := q.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 1, batch[0].Attempts)
}

func TestQueue_AckIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(30 * time.Second)

	item := newItem(model.PriorityMedium)
	require.NoError(t, q.Enqueue(ctx, item))

	batch, err := q.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, q.Ack(ctx, item.ID))
	require.NoError(t, q.Ack(ctx, item.ID))

	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Zero(t, depths.Total())
	assert.Zero(t, depths.InFlight)
}

func TestQueue_NackReschedulesAfterBackoff(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(30 * time.Second)

	now := time.Now()
	q.SetClock(func() time.Time { return now })

	item := newItem(model.PriorityHigh)
	require.NoError(t, q.Enqueue(ctx, item))

	batch, err := q.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, q.Nack(ctx, item.ID, 10*time.Second))

	// Not visible before the retry delay elapses.
	batch, err = q.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, batch)

	now = now.Add(11 * time.Second)
	batch, err = q.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, item.ID, batch[0].ID)
	assert.Equal(t, 2, batch[0].Attempts)
}

func TestQueue_NackWithoutLeaseIsNoop(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(30 * time.Second)

	item := newItem(model.PriorityMedium)
	require.NoError(t, q.Enqueue(ctx, item))

	// Never dequeued, so there is no lease to release.
	require.NoError(t, q.Nack(ctx, item.ID, time.Second))

	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depths.Tiers[0])
	assert.Zero(t, depths.Delayed)
}

func TestQueue_ExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(30 * time.Second)

	now := time.Now()
	q.SetClock(func() time.Time { return now })

	item := newItem(model.PriorityCritical)
	require.NoError(t, q.Enqueue(ctx, item))

	batch, err := q.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// Worker crashes: no ack, no nack. Lease expires and the item
	// becomes visible again.
	now = now.Add(31 * time.Second)
	batch, err = q.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, item.ID, batch[0].ID)
	assert.Equal(t, 2, batch[0].Attempts)
}

func TestQueue_PromotionsFollowReadyAtOrder(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(30 * time.Second)

	now := time.Now()
	q.SetClock(func() time.Time { return now })

	third := newItem(model.PriorityMedium)
	first := newItem(model.PriorityMedium)
	second := newItem(model.PriorityMedium)
	require.NoError(t, q.EnqueueAt(ctx, third, now.Add(3*time.Second)))
	require.NoError(t, q.EnqueueAt(ctx, first, now.Add(1*time.Second)))
	require.NoError(t, q.EnqueueAt(ctx, second, now.Add(2*time.Second)))

	// All three come due in the same poll. They enter the tier in
	// ready-time order, not insertion order.
	now = now.Add(5 * time.Second)
	batch, err := q.DequeueBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, first.ID, batch[0].ID)
	assert.Equal(t, second.ID, batch[1].ID)
	assert.Equal(t, third.ID, batch[2].ID)
}

func TestQueue_EnqueueAtDelaysVisibility(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(30 * time.Second)

	now := time.Now()
	q.SetClock(func() time.Time { return now })

	item := newItem(model.PriorityMedium)
	readyAt := now.Add(time.Hour)
	require.NoError(t, q.EnqueueAt(ctx, item, readyAt))

	batch, err := q.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, batch)

	now = readyAt.Add(time.Second)
	batch, err = q.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, item.ID, batch[0].ID)
}

func TestQueue_Depths(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(30 * time.Second)

	require.NoError(t, q.Enqueue(ctx, newItem(model.PriorityLow)))
	require.NoError(t, q.Enqueue(ctx, newItem(model.PriorityHigh)))
	require.NoError(t, q.Enqueue(ctx, newItem(model.PriorityEmergency)))
	require.NoError(t, q.EnqueueAt(ctx, newItem(model.PriorityLow), time.Now().Add(time.Hour)))

	batch, err := q.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depths.Tiers[0])
	assert.Equal(t, int64(1), depths.Tiers[1])
	assert.Equal(t, int64(0), depths.Tiers[2])
	assert.Equal(t, int64(1), depths.Delayed)
	assert.Equal(t, int64(1), depths.InFlight)
	assert.Equal(t, int64(2), depths.Total())
}
