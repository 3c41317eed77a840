package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"jewelstore/services/checkout/models"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrDuplicateDelivery = errors.New("webhook delivery already processed")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	maxFailureReason = 255
	maxDeliveryID    = 128
)

// allowedFrom lists the statuses each target status may be reached from. Paid is terminal.
var allowedFrom = map[models.OrderStatus][]models.OrderStatus{
	models.StatusVerified: {models.StatusCreated},
	models.StatusPaid:     {models.StatusCreated, models.StatusVerified, models.StatusFailed},
	models.StatusFailed:   {models.StatusCreated, models.StatusVerified},
}

// Open connects to the ledger database. Supported drivers are sqlite and postgres.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	return db, nil
}

// Ledger persists local order state and the webhook deliveries already handled.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("ledger requires a database")
	}
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// RecordOrder stores a freshly created provider order in the created state.
func (l *Ledger) RecordOrder(ctx context.Context, order *models.Order) error {
	if order == nil || strings.TrimSpace(order.ID) == "" {
		return errors.New("order id required")
	}
	order.Status = models.StatusCreated
	if err := l.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("record order %s: %w", order.ID, err)
	}
	return nil
}

func (l *Ledger) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := l.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return &order, nil
}

// ListOrders returns the newest orders first, optionally filtered by status.
func (l *Ledger) ListOrders(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	query := l.db.WithContext(ctx).Order("created_at DESC").Limit(clampLimit(limit))
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// MarkVerified records a client confirmation whose signature checked out.
func (l *Ledger) MarkVerified(ctx context.Context, orderID, paymentID string) (*models.Order, error) {
	now := l.now()
	return l.transition(ctx, orderID, models.StatusVerified, map[string]any{
		"payment_id":  paymentID,
		"verified_at": now,
	})
}

// MarkPaid records a captured payment. A capture after a failed attempt wins.
func (l *Ledger) MarkPaid(ctx context.Context, orderID, paymentID string) (*models.Order, error) {
	now := l.now()
	return l.transition(ctx, orderID, models.StatusPaid, map[string]any{
		"payment_id":     paymentID,
		"paid_at":        now,
		"failure_reason": "",
	})
}

func (l *Ledger) MarkFailed(ctx context.Context, orderID, paymentID, reason string) (*models.Order, error) {
	reason = truncateUTF8(reason, maxFailureReason)
	return l.transition(ctx, orderID, models.StatusFailed, map[string]any{
		"payment_id":     paymentID,
		"failure_reason": reason,
	})
}

// transition applies a guarded status update. The WHERE clause carries the allowed source
// statuses so concurrent updates cannot skip the state machine.
func (l *Ledger) transition(ctx context.Context, orderID string, to models.OrderStatus, fields map[string]any) (*models.Order, error) {
	from := allowedFrom[to]
	fields["status"] = to
	fields["updated_at"] = l.now()
	res := l.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", orderID, from).
		Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("mark order %s %s: %w", orderID, to, res.Error)
	}
	order, err := l.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return order, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, to)
	}
	return order, nil
}

// RecordDelivery stores a webhook delivery. A delivery id seen before yields ErrDuplicateDelivery.
func (l *Ledger) RecordDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	if delivery == nil || strings.TrimSpace(delivery.ID) == "" {
		return errors.New("delivery id required")
	}
	delivery.ID = truncateUTF8(strings.TrimSpace(delivery.ID), maxDeliveryID)
	if delivery.ReceivedAt.IsZero() {
		delivery.ReceivedAt = l.now()
	}
	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(delivery)
	if res.Error != nil {
		return fmt.Errorf("record delivery %s: %w", delivery.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateDelivery
	}
	return nil
}

// ProcessDelivery records delivery and runs apply against a ledger bound to the same
// transaction. The outcome returned by apply is stored on the delivery. When apply fails
// nothing is committed, so a provider retry is processed again.
func (l *Ledger) ProcessDelivery(ctx context.Context, delivery *models.WebhookDelivery, apply func(tx *Ledger) (string, error)) (string, error) {
	var outcome string
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := &Ledger{db: tx, now: l.now}
		if err := scoped.RecordDelivery(ctx, delivery); err != nil {
			return err
		}
		result, err := apply(scoped)
		if err != nil {
			return err
		}
		outcome = result
		delivery.Outcome = result
		return tx.Model(delivery).Update("outcome", result).Error
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// ListDeliveries returns the most recent webhook deliveries.
func (l *Ledger) ListDeliveries(ctx context.Context, limit int) ([]models.WebhookDelivery, error) {
	var deliveries []models.WebhookDelivery
	if err := l.db.WithContext(ctx).Order("received_at DESC").Limit(clampLimit(limit)).Find(&deliveries).Error; err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return deliveries, nil
}

// Ping checks database connectivity for health probes.
func (l *Ledger) Ping(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// truncateUTF8 drops invalid bytes and cuts s to at most limit bytes on a rune boundary.
func truncateUTF8(s string, limit int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
