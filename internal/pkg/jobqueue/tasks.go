package jobqueue

import (
	"context"
	"time"

	"github.com/notemarket/notemarket/internal/pkg/notify"
	"github.com/notemarket/notemarket/internal/pkg/settlement"
)

const (
	TaskEscrowRelease = "escrow-release"
	TaskNotifyRelay   = "notification-relay"

	EscrowReleaseInterval = time.Minute
	NotifyRelayInterval   = 5 * time.Second
	escrowBatchSize       = 200
)

// EscrowReleaseTask promotes pending seller earnings whose hold period has passed.
func EscrowReleaseTask(svc *settlement.Service) Task {
	return Task{
		Name:     TaskEscrowRelease,
		Interval: EscrowReleaseInterval,
		Run: func(ctx context.Context) error {
			_, err := svc.ReleaseDueEscrow(ctx, time.Now(), escrowBatchSize)
			return err
		},
	}
}

// NotifyRelayTask forwards unpublished notifications to the broker.
func NotifyRelayTask(relay *notify.Relay) Task {
	return Task{
		Name:     TaskNotifyRelay,
		Interval: NotifyRelayInterval,
		Run: func(ctx context.Context) error {
			_, err := relay.RunOnce(ctx)
			return err
		},
	}
}
