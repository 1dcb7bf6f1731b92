package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/notemarket/notemarket/app/models"
	"github.com/notemarket/notemarket/internal/pkg/alert"
	"github.com/notemarket/notemarket/internal/pkg/database"
	"github.com/notemarket/notemarket/internal/pkg/metrics"
)

const (
	maxUnitAttempts      = 5
	conflictRetryBackoff = 25 * time.Millisecond
)

// Service settles captured payments exactly once.
type Service struct {
	cfg      Config
	repo     Repository
	alerts   alert.Notifier
	validate *validator.Validate

	now          func() time.Time
	newWatermark func() string
	retryBackoff time.Duration
}

// NewService creates a settlement service from an injected repository. It fails
// when the configuration is incomplete.
func NewService(cfg Config, repo Repository, alerts alert.Notifier) (*Service, error) {
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = DefaultReplayWindow
	}
	if cfg.EscrowHold <= 0 {
		cfg.EscrowHold = models.EscrowHoldPeriod
	}
	if cfg.UnitTimeout <= 0 {
		cfg.UnitTimeout = DefaultUnitTimeout
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, errors.New("settlement repository is required")
	}
	if alerts == nil {
		return nil, errors.New("alert notifier is required")
	}
	return &Service{
		cfg:          cfg,
		repo:         repo,
		alerts:       alerts,
		validate:     validator.New(),
		now:          time.Now,
		newWatermark: uuid.NewString,
		retryBackoff: conflictRetryBackoff,
	}, nil
}

// NewServiceFromDB creates a settlement service from a GORM DB handle.
func NewServiceFromDB(cfg Config, db *gorm.DB, alerts alert.Notifier) (*Service, error) {
	return NewService(cfg, NewRepository(db, cfg.LockTimeout), alerts)
}

// HandleGatewayEvent authenticates, filters and settles one gateway webhook.
// claimedAt is the sender's timestamp header; the zero value falls back to the
// body's created_at.
func (s *Service) HandleGatewayEvent(ctx context.Context, rawBody []byte, signatureHeader string, claimedAt time.Time) Outcome {
	out := s.handleGatewayEvent(ctx, rawBody, signatureHeader, claimedAt)
	metrics.SettlementOutcomes.WithLabelValues(models.WebhookSourceGateway, out.Result).Inc()
	return out
}

func (s *Service) handleGatewayEvent(ctx context.Context, rawBody []byte, signatureHeader string, claimedAt time.Time) Outcome {
	if err := VerifySignature(rawBody, signatureHeader, s.cfg.WebhookSecret); err != nil {
		meta := map[string]any{"body_bytes": len(rawBody)}
		switch {
		case errors.Is(err, ErrSignatureMissing):
			s.alerts.Notify(alert.SeverityWarning, "webhook_signature_missing", "Gateway webhook received without signature header", meta)
			return Outcome{StatusCode: http.StatusBadRequest, Result: ResultSignatureMissing}
		case errors.Is(err, ErrSignatureMalformed):
			s.alerts.Notify(alert.SeverityWarning, "webhook_signature_malformed", "Gateway webhook signature is not hex encoded", meta)
			return Outcome{StatusCode: http.StatusBadRequest, Result: ResultSignatureMalformed}
		default:
			s.alerts.Notify(alert.SeverityCritical, "webhook_signature_invalid", "Gateway webhook signature mismatch", meta)
			return Outcome{StatusCode: http.StatusUnauthorized, Result: ResultSignatureInvalid}
		}
	}

	var event GatewayEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		log.Warnf("[Settlement] %v: %v", ErrInvalidPayload, err)
		return Outcome{StatusCode: http.StatusBadRequest, Result: ResultInvalidPayload}
	}

	claimedAt, err := eventTime(event, claimedAt)
	if err != nil {
		log.Warnf("[Settlement] Gateway event %q: %v", event.Event, err)
		return Outcome{StatusCode: http.StatusBadRequest, Result: ResultTimestampMissing}
	}
	if age, err := s.checkReplay(claimedAt); err != nil {
		s.alerts.Notify(alert.SeverityWarning, "webhook_replay_rejected", "Gateway webhook timestamp outside replay window", map[string]any{
			"age_seconds": int64(math.Round(age.Seconds())),
			"event":       event.Event,
		})
		return Outcome{StatusCode: http.StatusBadRequest, Result: ResultReplayRejected}
	}

	if event.Event != EventPaymentCaptured {
		log.Infof("[Settlement] Ignoring gateway event %q", event.Event)
		return Outcome{StatusCode: http.StatusOK, Result: ResultIgnored}
	}

	payment := event.Payload.Payment.Entity
	paymentID := strings.TrimSpace(payment.ID)
	orderID := strings.TrimSpace(payment.OrderID)
	if paymentID == "" || orderID == "" {
		log.Warnf("[Settlement] %v: captured event without payment or order id", ErrInvalidPayload)
		return Outcome{StatusCode: http.StatusBadRequest, Result: ResultInvalidPayload}
	}

	return s.settle(ctx, settleRequest{
		source:    models.WebhookSourceGateway,
		eventType: event.Event,
		orderID:   orderID,
		paymentID: paymentID,
		payload:   rawBody,
	})
}

// eventTime prefers the header timestamp and falls back to the body's created_at.
func eventTime(event GatewayEvent, claimedAt time.Time) (time.Time, error) {
	if !claimedAt.IsZero() {
		return claimedAt, nil
	}
	if event.CreatedAt > 0 {
		return time.Unix(event.CreatedAt, 0), nil
	}
	return time.Time{}, ErrTimestampMissing
}

// checkReplay accepts timestamps at most ReplayWindow old or ahead.
func (s *Service) checkReplay(claimedAt time.Time) (time.Duration, error) {
	age := s.now().Sub(claimedAt)
	if age > s.cfg.ReplayWindow || age < -s.cfg.ReplayWindow {
		return age, ErrReplayRejected
	}
	return age, nil
}

// VerifyPayment settles an order on behalf of the buyer who paid for it. The
// signature is HMAC-SHA256 over "order_id|payment_id".
func (s *Service) VerifyPayment(ctx context.Context, in VerifyPaymentInput) Outcome {
	out := s.verifyPayment(ctx, in)
	metrics.SettlementOutcomes.WithLabelValues(models.WebhookSourceManual, out.Result).Inc()
	return out
}

func (s *Service) verifyPayment(ctx context.Context, in VerifyPaymentInput) Outcome {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	if err := s.validate.Struct(in); err != nil {
		return Outcome{StatusCode: http.StatusBadRequest, Result: ResultInvalidPayload, OrderID: in.OrderID}
	}

	payload := PaymentSignaturePayload(in.OrderID, in.PaymentID)
	if err := VerifySignature(payload, in.Signature, s.cfg.paymentKeySecret()); err != nil {
		s.alerts.Notify(alert.SeverityHigh, "payment_verification_signature_invalid", "Manual payment verification with invalid signature", map[string]any{
			"user_id":    in.UserID,
			"order_id":   in.OrderID,
			"payment_id": in.PaymentID,
		})
		return Outcome{StatusCode: http.StatusUnauthorized, Result: ResultSignatureInvalid, OrderID: in.OrderID}
	}

	body, _ := json.Marshal(map[string]any{
		"user_id":    in.UserID,
		"order_id":   in.OrderID,
		"payment_id": in.PaymentID,
	})
	return s.settle(ctx, settleRequest{
		source:    models.WebhookSourceManual,
		eventType: EventPaymentVerified,
		orderID:   in.OrderID,
		paymentID: in.PaymentID,
		buyerID:   in.UserID,
		payload:   body,
	})
}

// settle runs the idempotency check, the business-state check and the atomic unit
// inside one DB transaction, then maps the result to an Outcome. Alerts fire only
// after the transaction has returned.
func (s *Service) settle(ctx context.Context, req settleRequest) Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.UnitTimeout)
	defer cancel()

	settled, err := s.settleWithRetry(ctx, req)

	switch {
	case err == nil:
		log.Infof("[Settlement] Order %s settled via %s (%d transactions)", req.orderID, req.source, settled)
		return Outcome{StatusCode: http.StatusOK, Result: ResultSettled, OrderID: req.orderID, Settled: settled}
	case errors.Is(err, ErrAlreadyProcessed):
		log.Infof("[Settlement] Payment %s for order %s already processed", req.paymentID, req.orderID)
		return Outcome{StatusCode: http.StatusOK, Result: ResultAlreadyProcessed, OrderID: req.orderID}
	case errors.Is(err, ErrUnknownOrder):
		log.Warnf("[Settlement] Unknown order %s (payment %s)", req.orderID, req.paymentID)
		return Outcome{StatusCode: http.StatusNotFound, Result: ResultUnknownOrder, OrderID: req.orderID}
	case errors.Is(err, ErrForbidden):
		log.Warnf("[Settlement] User %d tried to verify order %s of another buyer", req.buyerID, req.orderID)
		return Outcome{StatusCode: http.StatusForbidden, Result: ResultForbidden, OrderID: req.orderID}
	}

	err = fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	log.Errorf("[Settlement] Order %s payment %s: %v", req.orderID, req.paymentID, err)
	s.alerts.Notify(alert.SeverityCritical, "settlement_failed", "Atomic settlement rolled back", map[string]any{
		"order_id":   req.orderID,
		"payment_id": req.paymentID,
		"source":     req.source,
		"error":      err.Error(),
	})
	return Outcome{StatusCode: http.StatusInternalServerError, Result: ResultSettlementFailed, OrderID: req.orderID}
}

// settleWithRetry reruns the atomic unit when it lost a lock or serialization
// conflict. A rerun after a concurrent duplicate sees its WebhookLog row and ends
// as already processed.
func (s *Service) settleWithRetry(ctx context.Context, req settleRequest) (int, error) {
	var (
		settled int
		err     error
	)
	for attempt := 1; attempt <= maxUnitAttempts; attempt++ {
		start := time.Now()
		settled, err = s.settleAtomically(ctx, req)
		metrics.SettlementDuration.WithLabelValues(req.source).Observe(time.Since(start).Seconds())

		if err == nil || !database.IsTransientError(err) || attempt == maxUnitAttempts {
			break
		}
		metrics.SettlementConflictRetries.WithLabelValues(req.source).Inc()
		log.Warnf("[Settlement] Order %s payment %s conflicted (attempt %d/%d): %v", req.orderID, req.paymentID, attempt, maxUnitAttempts, err)
		if werr := waitRetry(ctx, s.retryBackoff*time.Duration(attempt)); werr != nil {
			return 0, fmt.Errorf("%w (retry aborted: %v)", err, werr)
		}
	}
	return settled, err
}

func waitRetry(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) settleAtomically(ctx context.Context, req settleRequest) (int, error) {
	eventID := EventID(req.paymentID)
	settled := 0

	err := s.repo.WithinTransaction(ctx, func(repo Repository) error {
		if _, err := repo.FindWebhookLog(ctx, eventID); err == nil {
			return ErrAlreadyProcessed
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("lookup webhook log: %w", err)
		}

		txns, err := repo.ListTransactionsByOrder(ctx, req.orderID)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		if len(txns) == 0 {
			return ErrUnknownOrder
		}
		lead := txns[0]
		if req.buyerID != 0 && lead.BuyerID != req.buyerID {
			return ErrForbidden
		}
		if !lead.IsPending() {
			return ErrAlreadyProcessed
		}

		releaseAt := s.now().Add(s.cfg.EscrowHold)
		for _, txn := range txns {
			if !models.CanTransitionTo(txn.Status, models.TransactionStatusSuccess) {
				continue
			}
			if err := s.settleOne(ctx, repo, txn, req.paymentID, releaseAt); err != nil {
				return err
			}
			settled++
		}

		if err := repo.CreateNotification(ctx, &models.Notification{
			UserID:      lead.BuyerID,
			Type:        models.NotificationTypePurchase,
			Content:     fmt.Sprintf("Payment confirmed for order %s: %d note(s) added to your library.", req.orderID, settled),
			ReferenceID: req.orderID,
		}); err != nil {
			return fmt.Errorf("buyer notification: %w", err)
		}

		created, err := repo.CreateWebhookLogIfNotExists(ctx, &models.WebhookLog{
			EventID:     eventID,
			EventType:   req.eventType,
			Source:      req.source,
			PayloadJSON: string(req.payload),
			Status:      models.WebhookLogStatusProcessed,
			ProcessedAt: s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("write webhook log: %w", err)
		}
		if !created {
			return ErrAlreadyProcessed
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return settled, nil
}

func (s *Service) settleOne(ctx context.Context, repo Repository, txn models.Transaction, paymentID string, releaseAt time.Time) error {
	ok, err := repo.SettleTransaction(ctx, txn.ID, paymentID, releaseAt)
	if err != nil {
		return fmt.Errorf("settle transaction %d: %w", txn.ID, err)
	}
	if !ok {
		return fmt.Errorf("transaction %d: %w", txn.ID, ErrAlreadyProcessed)
	}

	note, err := repo.GetNote(ctx, txn.NoteID)
	if err != nil {
		return fmt.Errorf("load note %d: %w", txn.NoteID, err)
	}
	if err := repo.CreatePurchase(ctx, &models.Purchase{
		TransactionID: txn.ID,
		BuyerID:       txn.BuyerID,
		NoteID:        txn.NoteID,
		WatermarkID:   s.newWatermark(),
		FileKey:       note.FileKey,
	}); err != nil {
		return fmt.Errorf("create purchase for transaction %d: %w", txn.ID, err)
	}
	if err := repo.IncrementNotePurchases(ctx, txn.NoteID); err != nil {
		return fmt.Errorf("increment purchases: %w", err)
	}
	if err := repo.CreditSellerWallet(ctx, txn.SellerID, txn.SellerEarning); err != nil {
		return fmt.Errorf("credit wallet of seller %d: %w", txn.SellerID, err)
	}
	if err := repo.CreateNotification(ctx, &models.Notification{
		UserID:      txn.SellerID,
		Type:        models.NotificationTypeSale,
		Content:     fmt.Sprintf("You sold \"%s\" and earned %s. Funds are pending until %s.", note.Title, txn.SellerEarning.StringFixed(2), releaseAt.UTC().Format(time.RFC3339)),
		ReferenceID: txn.GatewayOrderID,
	}); err != nil {
		return fmt.Errorf("seller notification: %w", err)
	}
	return nil
}
