package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/notemarket/notemarket/internal/pkg/metrics"
)

const DefaultBatchSize = 100

// Relay forwards notifications written by settlement to the broker. Delivery is
// at-least-once: a crash between publish and MarkPublished republishes the batch.
type Relay struct {
	repo      Repository
	publisher Publisher
	batchSize int
	now       func() time.Time
}

func NewRelay(repo Repository, publisher Publisher, batchSize int) *Relay {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Relay{repo: repo, publisher: publisher, batchSize: batchSize, now: time.Now}
}

// RunOnce publishes at most one batch and returns how many notifications went out.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.repo.ListUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load unpublished notifications: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	events := make([]NotificationEvent, 0, len(pending))
	ids := make([]uint, 0, len(pending))
	for _, n := range pending {
		events = append(events, eventFromModel(n))
		ids = append(ids, n.ID)
	}

	if err := r.publisher.Publish(ctx, events...); err != nil {
		return 0, fmt.Errorf("publish %d notifications: %w", len(events), err)
	}
	if err := r.repo.MarkPublished(ctx, ids, r.now().UTC()); err != nil {
		return 0, fmt.Errorf("mark notifications published: %w", err)
	}

	metrics.NotificationsPublished.Add(float64(len(ids)))
	log.Infof("[Notify] Published %d notifications", len(ids))
	return len(ids), nil
}

// Close releases the publisher.
func (r *Relay) Close() error {
	return r.publisher.Close()
}
