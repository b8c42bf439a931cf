package memq

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/repository"
)

const tierCount = 3

// Queue is an in-memory delivery queue with the same semantics as the
// Redis implementation: strict tier priority, FIFO within a tier,
// delayed retries, lease on dequeue, idempotent ack/nack. Used by
// tests and single-binary deployments.
type Queue struct {
	mu           sync.Mutex
	tiers        [tierCount][]uuid.UUID
	items        map[uuid.UUID]*model.QueueItem
	delayed      map[uuid.UUID]time.Time
	inflight     map[uuid.UUID]time.Time
	leaseTimeout time.Duration
	now          func() time.Time
}

func NewQueue(leaseTimeout time.Duration) *Queue {
	if leaseTimeout <= 0 {
		leaseTimeout = 30 * time.Second
	}
	return &Queue{
		items:        make(map[uuid.UUID]*model.QueueItem),
		delayed:      make(map[uuid.UUID]time.Time),
		inflight:     make(map[uuid.UUID]time.Time),
		leaseTimeout: leaseTimeout,
		now:          time.Now,
	}
}

// SetClock overrides the queue's clock; tests only.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

var _ repository.DeliveryQueue = (*Queue)(nil)

func (q *Queue) Enqueue(_ context.Context, item *model.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = q.now()
	}
	cp := *item
	q.items[item.ID] = &cp
	tier := item.Priority.QueueTier()
	q.tiers[tier] = append(q.tiers[tier], item.ID)
	return nil
}

func (q *Queue) EnqueueAt(_ context.Context, item *model.QueueItem, readyAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = q.now()
	}
	item.NextRetryAt = &readyAt
	cp := *item
	q.items[item.ID] = &cp
	q.delayed[item.ID] = readyAt
	return nil
}

func (q *Queue) DequeueBatch(_ context.Context, n int) ([]*model.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 {
		return nil, nil
	}
	now := q.now()
	q.promoteLocked(q.delayed, now)
	q.promoteLocked(q.inflight, now)

	out := make([]*model.QueueItem, 0, n)
	for tier := tierCount - 1; tier >= 0 && len(out) < n; tier-- {
		for len(out) < n && len(q.tiers[tier]) > 0 {
			id := q.tiers[tier][0]
			q.tiers[tier] = q.tiers[tier][1:]

			item, ok := q.items[id]
			if !ok {
				continue
			}
			item.Attempts++
			q.inflight[id] = now.Add(q.leaseTimeout)
			cp := *item
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (q *Queue) Ack(_ context.Context, itemID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, itemID)
	delete(q.delayed, itemID)
	delete(q.items, itemID)
	return nil
}

func (q *Queue) Nack(_ context.Context, itemID uuid.UUID, retryAfter time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, leased := q.inflight[itemID]; !leased {
		return nil
	}
	delete(q.inflight, itemID)

	item, ok := q.items[itemID]
	if !ok {
		return nil
	}
	readyAt := q.now().Add(retryAfter)
	item.NextRetryAt = &readyAt
	q.delayed[itemID] = readyAt
	return nil
}

func (q *Queue) Depths(_ context.Context) (model.QueueDepths, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	depths := model.QueueDepths{Tiers: make(map[int]int64, tierCount)}
	for tier := 0; tier < tierCount; tier++ {
		depths.Tiers[tier] = int64(len(q.tiers[tier]))
	}
	depths.Delayed = int64(len(q.delayed))
	depths.InFlight = int64(len(q.inflight))
	return depths, nil
}

// promoteLocked requeues due entries in readyAt order, matching the
// score-ordered scan of the Redis implementation.
func (q *Queue) promoteLocked(set map[uuid.UUID]time.Time, now time.Time) {
	type dueEntry struct {
		id  uuid.UUID
		due time.Time
	}
	due := make([]dueEntry, 0, len(set))
	for id, at := range set {
		if at.After(now) {
			continue
		}
		due = append(due, dueEntry{id: id, due: at})
	}
	sort.Slice(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })

	for _, e := range due {
		delete(set, e.id)
		item, ok := q.items[e.id]
		if !ok {
			continue
		}
		tier := item.Priority.QueueTier()
		q.tiers[tier] = append(q.tiers[tier], e.id)
	}
}
