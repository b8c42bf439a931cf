package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/repository"
)

const tierCount = 3

// Queue is a Redis-backed tiered delivery queue. Each tier is a list
// drained FIFO; retries and scheduled items wait in a delay set; leased
// items sit in an in-flight set scored by lease expiry so a crashed
// worker's items are reclaimed (at-least-once semantics).
type Queue struct {
	client       *redis.Client
	prefix       string
	leaseTimeout time.Duration
	logger       *zerolog.Logger
}

type Config struct {
	Prefix       string
	LeaseTimeout time.Duration
}

func NewQueue(client *redis.Client, cfg Config, logger *zerolog.Logger) repository.DeliveryQueue {
	if cfg.Prefix == "" {
		cfg.Prefix = "notify:q"
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 30 * time.Second
	}
	return &Queue{
		client:       client,
		prefix:       cfg.Prefix,
		leaseTimeout: cfg.LeaseTimeout,
		logger:       logger,
	}
}

// popAndLease moves the next id from a tier list into the in-flight
// set in one atomic step, so a worker crash between the pop and the
// lease can never strand an item outside every set.
var popAndLease = redis.NewScript(`
local id = redis.call('LPOP', KEYS[1])
if not id then
	return false
end
redis.call('ZADD', KEYS[2], ARGV[1], id)
return id`)

func (q *Queue) tierKey(tier int) string { return fmt.Sprintf("%s:tier:%d", q.prefix, tier) }
func (q *Queue) itemsKey() string        { return q.prefix + ":items" }
func (q *Queue) delayedKey() string      { return q.prefix + ":delayed" }
func (q *Queue) inflightKey() string     { return q.prefix + ":inflight" }

func (q *Queue) Enqueue(ctx context.Context, item *model.QueueItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.itemsKey(), item.ID.String(), payload)
	pipe.RPush(ctx, q.tierKey(item.Priority.QueueTier()), item.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue item: %w", err)
	}
	return nil
}

func (q *Queue) EnqueueAt(ctx context.Context, item *model.QueueItem, readyAt time.Time) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	item.NextRetryAt = &readyAt
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.itemsKey(), item.ID.String(), payload)
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: item.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue delayed item: %w", err)
	}
	return nil
}

func (q *Queue) DequeueBatch(ctx context.Context, n int) ([]*model.QueueItem, error) {
	if n <= 0 {
		return nil, nil
	}
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}
	if err := q.reclaimExpiredLeases(ctx); err != nil {
		return nil, err
	}

	items := make([]*model.QueueItem, 0, n)
	now := time.Now()
	for tier := tierCount - 1; tier >= 0 && len(items) < n; tier-- {
		for len(items) < n {
			res, err := popAndLease.Run(ctx, q.client,
				[]string{q.tierKey(tier), q.inflightKey()},
				now.Add(q.leaseTimeout).UnixMilli(),
			).Result()
			if err == redis.Nil {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to pop from tier %d: %w", tier, err)
			}
			id := fmt.Sprint(res)

			item, err := q.loadItem(ctx, id)
			if err != nil {
				// Acked while still listed; release the fresh lease.
				if err == repository.ErrNotFound {
					q.client.ZRem(ctx, q.inflightKey(), id)
					q.logger.Debug().Str("item_id", id).Msg("skipping acked queue item")
					continue
				}
				return nil, err
			}

			item.Attempts++
			if err := q.storeItem(ctx, item); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (q *Queue) Ack(ctx context.Context, itemID uuid.UUID) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey(), itemID.String())
	pipe.ZRem(ctx, q.delayedKey(), itemID.String())
	pipe.HDel(ctx, q.itemsKey(), itemID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack item: %w", err)
	}
	return nil
}

func (q *Queue) Nack(ctx context.Context, itemID uuid.UUID, retryAfter time.Duration) error {
	removed, err := q.client.ZRem(ctx, q.inflightKey(), itemID.String()).Result()
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	if removed == 0 {
		// Not leased: already acked or retried, no-op.
		return nil
	}

	item, err := q.loadItem(ctx, itemID.String())
	if err != nil {
		if err == repository.ErrNotFound {
			return nil
		}
		return err
	}

	readyAt := time.Now().Add(retryAfter)
	item.NextRetryAt = &readyAt
	if err := q.storeItem(ctx, item); err != nil {
		return err
	}
	if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: itemID.String(),
	}).Err(); err != nil {
		return fmt.Errorf("failed to reschedule item: %w", err)
	}
	return nil
}

func (q *Queue) Depths(ctx context.Context) (model.QueueDepths, error) {
	depths := model.QueueDepths{Tiers: make(map[int]int64, tierCount)}
	for tier := 0; tier < tierCount; tier++ {
		n, err := q.client.LLen(ctx, q.tierKey(tier)).Result()
		if err != nil {
			return depths, fmt.Errorf("failed to read tier %d depth: %w", tier, err)
		}
		depths.Tiers[tier] = n
	}

	delayed, err := q.client.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return depths, fmt.Errorf("failed to read delayed depth: %w", err)
	}
	depths.Delayed = delayed

	inflight, err := q.client.ZCard(ctx, q.inflightKey()).Result()
	if err != nil {
		return depths, fmt.Errorf("failed to read in-flight depth: %w", err)
	}
	depths.InFlight = inflight
	return depths, nil
}

// promoteDue moves delayed items whose retry time has arrived onto
// their priority tier.
func (q *Queue) promoteDue(ctx context.Context) error {
	return q.promoteSet(ctx, q.delayedKey())
}

// reclaimExpiredLeases requeues items whose worker never acked within
// the lease window.
func (q *Queue) reclaimExpiredLeases(ctx context.Context) error {
	return q.promoteSet(ctx, q.inflightKey())
}

func (q *Queue) promoteSet(ctx context.Context, key string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", key, err)
	}

	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, key, id).Result()
		if err != nil {
			return fmt.Errorf("failed to remove %s from %s: %w", id, key, err)
		}
		if removed == 0 {
			// Another worker promoted it first.
			continue
		}
		item, err := q.loadItem(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				q.logger.Debug().Str("item_id", id).Msg("skipping acked queue item during promotion")
				continue
			}
			return err
		}
		if err := q.client.RPush(ctx, q.tierKey(item.Priority.QueueTier()), id).Err(); err != nil {
			return fmt.Errorf("failed to promote %s: %w", id, err)
		}
	}
	return nil
}

func (q *Queue) loadItem(ctx context.Context, id string) (*model.QueueItem, error) {
	raw, err := q.client.HGet(ctx, q.itemsKey(), id).Result()
	if err == redis.Nil {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", id, err)
	}
	var item model.QueueItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item %s: %w", id, err)
	}
	return &item, nil
}

func (q *Queue) storeItem(ctx context.Context, item *model.QueueItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	if err := q.client.HSet(ctx, q.itemsKey(), item.ID.String(), payload).Err(); err != nil {
		return fmt.Errorf("failed to store item: %w", err)
	}
	return nil
}
