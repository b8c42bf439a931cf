package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jwalitptl/notification-engine/pkg/logger"
	"github.com/jwalitptl/notification-engine/pkg/metrics"

	"github.com/jwalitptl/notification-engine/internal/config"
	"github.com/jwalitptl/notification-engine/internal/delivery"
	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/repository"
	"github.com/jwalitptl/notification-engine/internal/service/preference"
)

// DeliveryWorker is a supervised pool pulling delivery items off the
// queue in priority order. Each item is leased to exactly one worker
// for the duration of an attempt; recipients are independent, so a
// failure for one never touches another.
type DeliveryWorker struct {
	queue   repository.DeliveryQueue
	repo    repository.NotificationRepository
	prefs   preference.Service
	manager *delivery.Manager
	cfg     config.QueueConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewDeliveryWorker(
	queue repository.DeliveryQueue,
	repo repository.NotificationRepository,
	prefs preference.Service,
	manager *delivery.Manager,
	cfg config.QueueConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *DeliveryWorker {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	return &DeliveryWorker{
		queue:   queue,
		repo:    repo,
		prefs:   prefs,
		manager: manager,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Start runs the pool until ctx is cancelled.
func (w *DeliveryWorker) Start(ctx context.Context) {
	w.logger.Info("starting delivery workers", "count", w.cfg.WorkerCount)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.run(ctx, fmt.Sprintf("delivery-%d", id))
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reportDepths(ctx)
	}()

	wg.Wait()
	w.logger.Info("delivery workers stopped")
}

func (w *DeliveryWorker) run(ctx context.Context, id string) {
	log := w.logger.WithFields(map[string]interface{}{"worker_id": id})
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		case <-ticker.C:
			if err := w.processBatch(ctx, log); err != nil {
				log.Error(err, "failed to process batch")
			}
		}
	}
}

func (w *DeliveryWorker) processBatch(ctx context.Context, log *logger.Logger) error {
	items, err := w.queue.DequeueBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to dequeue batch: %w", err)
	}
	w.metrics.ItemsInFlight.Add(float64(len(items)))

	for _, item := range items {
		w.processItem(ctx, log, item)
		w.metrics.ItemsInFlight.Dec()
	}
	return nil
}

func (w *DeliveryWorker) processItem(ctx context.Context, log *logger.Logger, item *model.QueueItem) {
	n, err := w.repo.Get(ctx, item.NotificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Notification gone; nothing to deliver.
			w.ack(ctx, log, item)
			return
		}
		log.Error(err, "failed to load notification", "item_id", item.ID.String())
		w.nack(ctx, log, item)
		return
	}

	if n.Expired(time.Now()) {
		for _, channel := range item.Channels {
			record := model.DeliveryRecord{Status: model.ChannelStatusExpired, UpdatedAt: time.Now()}
			if err := w.repo.UpdateRecipientStatus(ctx, n.ID, item.RecipientID, channel, record); err != nil {
				log.Error(err, "failed to mark channel expired", "item_id", item.ID.String())
			}
		}
		w.metrics.ItemsExpired.Inc()
		log.Info("discarding expired item",
			"item_id", item.ID.String(),
			"notification_id", n.ID.String())
		w.ack(ctx, log, item)
		return
	}

	rec := n.Recipient(item.RecipientID)
	if rec == nil {
		log.Warn("recipient not on notification, dropping item",
			"item_id", item.ID.String(),
			"recipient_id", item.RecipientID.String())
		w.ack(ctx, log, item)
		return
	}

	prefs := w.prefs.Get(ctx, item.RecipientID)

	_, err = w.manager.Deliver(ctx, n, rec, prefs.ContactInfo, item.Channels)
	if err == nil {
		w.ack(ctx, log, item)
		return
	}

	if item.Attempts >= w.cfg.MaxRetries {
		// Fallback and retries both exhausted: terminal failure. The
		// manager already stamped the per-channel failures.
		w.metrics.TerminalFailures.Inc()
		log.Error(err, "item failed terminally",
			"item_id", item.ID.String(),
			"notification_id", n.ID.String(),
			"recipient_id", item.RecipientID.String(),
			"attempts", item.Attempts)
		w.ack(ctx, log, item)
		return
	}

	w.nack(ctx, log, item)
}

func (w *DeliveryWorker) ack(ctx context.Context, log *logger.Logger, item *model.QueueItem) {
	if err := w.queue.Ack(ctx, item.ID); err != nil {
		log.Error(err, "failed to ack item", "item_id", item.ID.String())
	}
}

func (w *DeliveryWorker) nack(ctx context.Context, log *logger.Logger, item *model.QueueItem) {
	if err := w.queue.Nack(ctx, item.ID, w.backoff(item.Attempts)); err != nil {
		log.Error(err, "failed to nack item", "item_id", item.ID.String())
	}
}

// backoff doubles per attempt: base, 2x, 4x...
func (w *DeliveryWorker) backoff(attempts int) time.Duration {
	d := w.cfg.RetryBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}

func (w *DeliveryWorker) reportDepths(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.recordDepths(ctx)
		}
	}
}

// recordDepths publishes queue-wide gauges, including leases held by
// other worker processes.
func (w *DeliveryWorker) recordDepths(ctx context.Context) {
	depths, err := w.queue.Depths(ctx)
	if err != nil {
		w.logger.Error(err, "failed to read queue depths")
		return
	}
	for tier, depth := range depths.Tiers {
		w.metrics.QueueDepth.WithLabelValues(strconv.Itoa(tier)).Set(float64(depth))
	}
	w.metrics.QueueDelayed.Set(float64(depths.Delayed))
	w.metrics.QueueInFlight.Set(float64(depths.InFlight))
}
