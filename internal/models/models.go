package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderEvent is the ledger row for every event this service has ever accepted.
// The (event_type, order_id) pair is unique: a second insert attempt for the
// same pair must be a no-op, never an update. Rows are immutable and are the
// replay source of truth for the aggregate tables.
type OrderEvent struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	EventType     string    `gorm:"not null;uniqueIndex:idx_order_events_dedup,priority:1" json:"event_type"`
	OrderID       int64     `gorm:"not null;uniqueIndex:idx_order_events_dedup,priority:2" json:"order_id"`
	UserID        *int64    `json:"user_id"`
	CorrelationID *string   `json:"correlation_id"`
	Payload       []byte    `gorm:"type:jsonb" json:"payload"`
	ReceivedAt    time.Time `gorm:"not null" json:"received_at"`
}

// DailyMetrics holds additive counters for one calendar date. Rows are created
// lazily on the first event of that date and mutated only by increment-merge.
type DailyMetrics struct {
	Date                time.Time       `gorm:"primaryKey;type:date" json:"date"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	OrdersCreated       int64           `gorm:"not null;default:0" json:"orders_created"`
	OrdersConfirmed     int64           `gorm:"not null;default:0" json:"orders_confirmed"`
	OrdersCancelled     int64           `gorm:"not null;default:0" json:"orders_cancelled"`
	OrdersShipped       int64           `gorm:"not null;default:0" json:"orders_shipped"`
	PaymentSuccessCount int64           `gorm:"not null;default:0" json:"payment_success_count"`
	PaymentFailureCount int64           `gorm:"not null;default:0" json:"payment_failure_count"`
	RevenueConfirmed    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"revenue_confirmed"`
	RevenueCancelled    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"revenue_cancelled"`
}

// HourlyMetrics holds additive counters for one hour bucket (the processing
// instant truncated to the hour, UTC).
type HourlyMetrics struct {
	Bucket     time.Time       `gorm:"primaryKey" json:"bucket"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	OrderCount int64           `gorm:"not null;default:0" json:"order_count"`
	Revenue    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"revenue"`
}

// ProductMetrics holds per-product lifetime counters. The numeric fields are
// additive; LastOrderedAt is overwritten, last write wins.
type ProductMetrics struct {
	ProductID         int64           `gorm:"primaryKey" json:"product_id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	TotalQuantitySold int64           `gorm:"not null;default:0" json:"total_quantity_sold"`
	TotalRevenue      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_revenue"`
	OrderCount        int64           `gorm:"not null;default:0" json:"order_count"`
	LastOrderedAt     *time.Time      `json:"last_ordered_at"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&OrderEvent{},
		&DailyMetrics{},
		&HourlyMetrics{},
		&ProductMetrics{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
