package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/notemarket/notemarket/internal/pkg/metrics"
)

// ReleaseDueEscrow moves the earnings of settled transactions whose hold period
// has passed from pending to available. Each transaction is released at most once.
func (s *Service) ReleaseDueEscrow(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.ListReleasableTransactions(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list releasable transactions: %w", err)
	}

	released := 0
	for _, txn := range due {
		err := s.repo.WithinTransaction(ctx, func(repo Repository) error {
			ok, err := repo.MarkEscrowReleased(ctx, txn.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				return ErrAlreadyProcessed
			}
			return repo.ReleaseSellerFunds(ctx, txn.SellerID, txn.SellerEarning)
		})
		switch {
		case err == nil:
			released++
			metrics.EscrowReleased.Inc()
		case errors.Is(err, ErrAlreadyProcessed):
			continue
		default:
			return released, fmt.Errorf("release escrow for transaction %d: %w", txn.ID, err)
		}
	}

	if released > 0 {
		log.Infof("[Settlement] Released escrow for %d transactions", released)
	}
	return released, nil
}
