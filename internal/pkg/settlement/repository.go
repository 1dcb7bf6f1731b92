package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/notemarket/notemarket/app/models"
)

// Repository provides DB operations used by the settlement service.
type Repository interface {
	// WithinTransaction runs fn against a repository bound to one DB transaction.
	WithinTransaction(ctx context.Context, fn func(repo Repository) error) error

	FindWebhookLog(ctx context.Context, eventID string) (*models.WebhookLog, error)
	ListTransactionsByOrder(ctx context.Context, orderID string) ([]models.Transaction, error)
	SettleTransaction(ctx context.Context, id uint, paymentID string, releaseAt time.Time) (bool, error)
	GetNote(ctx context.Context, id uint) (*models.Note, error)
	CreatePurchase(ctx context.Context, purchase *models.Purchase) error
	IncrementNotePurchases(ctx context.Context, noteID uint) error
	CreditSellerWallet(ctx context.Context, sellerID uint, amount decimal.Decimal) error
	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateWebhookLogIfNotExists(ctx context.Context, entry *models.WebhookLog) (bool, error)

	ListReleasableTransactions(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error)
	MarkEscrowReleased(ctx context.Context, id uint, now time.Time) (bool, error)
	ReleaseSellerFunds(ctx context.Context, sellerID uint, amount decimal.Decimal) error
	GetSellerWallet(ctx context.Context, sellerID uint) (*models.SellerWallet, error)
}

type gormRepository struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewRepository creates a settlement repository backed by GORM.
func NewRepository(db *gorm.DB, lockTimeout time.Duration) Repository {
	return &gormRepository{db: db, lockTimeout: lockTimeout}
}

func (r *gormRepository) WithinTransaction(ctx context.Context, fn func(repo Repository) error) error {
	dialect := r.db.Dialector.Name()

	var opts []*sql.TxOptions
	if dialect == "mysql" || dialect == "postgres" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setLockTimeout(tx, dialect, r.lockTimeout); err != nil {
			return err
		}
		return fn(&gormRepository{db: tx, lockTimeout: r.lockTimeout})
	}, opts...)
}

func setLockTimeout(tx *gorm.DB, dialect string, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	switch dialect {
	case "postgres":
		return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())).Error
	case "mysql":
		secs := int(timeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		return tx.Exec(fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)).Error
	}
	return nil
}

func (r *gormRepository) FindWebhookLog(ctx context.Context, eventID string) (*models.WebhookLog, error) {
	var entry models.WebhookLog
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *gormRepository) ListTransactionsByOrder(ctx context.Context, orderID string) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("gateway_order_id = ?", orderID).
		Order("id ASC").
		Find(&txns).Error
	return txns, err
}

func (r *gormRepository) SettleTransaction(ctx context.Context, id uint, paymentID string, releaseAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":             models.TransactionStatusSuccess,
			"gateway_payment_id": paymentID,
			"escrow_release_at":  releaseAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) GetNote(ctx context.Context, id uint) (*models.Note, error) {
	var note models.Note
	if err := r.db.WithContext(ctx).First(&note, id).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *gormRepository) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *gormRepository) IncrementNotePurchases(ctx context.Context, noteID uint) error {
	res := r.db.WithContext(ctx).
		Model(&models.Note{}).
		Where("id = ?", noteID).
		UpdateColumn("purchase_count", gorm.Expr("purchase_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("note %d: %w", noteID, gorm.ErrRecordNotFound)
	}
	return nil
}

// CreditSellerWallet adds amount to pending_balance and total_earned, creating the
// wallet on first sale.
func (r *gormRepository) CreditSellerWallet(ctx context.Context, sellerID uint, amount decimal.Decimal) error {
	wallet := &models.SellerWallet{
		SellerID:         sellerID,
		AvailableBalance: decimal.Zero,
		PendingBalance:   amount,
		TotalEarned:      amount,
		TotalWithdrawn:   decimal.Zero,
		MinWithdrawal:    models.DefaultMinWithdrawal,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "seller_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"pending_balance": gorm.Expr("seller_wallets.pending_balance + ?", amount),
			"total_earned":    gorm.Expr("seller_wallets.total_earned + ?", amount),
			"updated_at":      time.Now(),
		}),
	}).Create(wallet).Error
}

func (r *gormRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// CreateWebhookLogIfNotExists reports false when the event id is already taken.
func (r *gormRepository) CreateWebhookLogIfNotExists(ctx context.Context, entry *models.WebhookLog) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) ListReleasableTransactions(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND escrow_release_at <= ? AND escrow_released_at IS NULL", models.TransactionStatusSuccess, now).
		Order("escrow_release_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *gormRepository) MarkEscrowReleased(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND escrow_released_at IS NULL", id).
		Update("escrow_released_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) ReleaseSellerFunds(ctx context.Context, sellerID uint, amount decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.SellerWallet{}).
		Where("seller_id = ?", sellerID).
		Updates(map[string]interface{}{
			"pending_balance":   gorm.Expr("pending_balance - ?", amount),
			"available_balance": gorm.Expr("available_balance + ?", amount),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("wallet for seller %d: %w", sellerID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *gormRepository) GetSellerWallet(ctx context.Context, sellerID uint) (*models.SellerWallet, error) {
	var wallet models.SellerWallet
	if err := r.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}
