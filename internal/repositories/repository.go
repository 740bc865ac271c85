package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/backstage/services/insights/internal/models"
)

// DailyDelta is a partial set of increments for one daily row. Zero-valued
// fields contribute nothing.
type DailyDelta struct {
	OrdersCreated       int64
	OrdersConfirmed     int64
	OrdersCancelled     int64
	OrdersShipped       int64
	PaymentSuccessCount int64
	PaymentFailureCount int64
	RevenueConfirmed    decimal.Decimal
	RevenueCancelled    decimal.Decimal
}

// HourlyDelta is a partial set of increments for one hourly row.
type HourlyDelta struct {
	OrderCount int64
	Revenue    decimal.Decimal
}

// ProductDelta is a partial set of increments for one product row.
// LastOrderedAt overwrites the stored value rather than merging.
type ProductDelta struct {
	QuantitySold  int64
	Revenue       decimal.Decimal
	OrderCount    int64
	LastOrderedAt time.Time
}

// LifetimeTotals are full-table scalar sums over the daily rows.
type LifetimeTotals struct {
	OrdersCreated       int64           `json:"orders_created"`
	OrdersConfirmed     int64           `json:"orders_confirmed"`
	OrdersCancelled     int64           `json:"orders_cancelled"`
	OrdersShipped       int64           `json:"orders_shipped"`
	PaymentSuccessCount int64           `json:"payment_success_count"`
	PaymentFailureCount int64           `json:"payment_failure_count"`
	RevenueConfirmed    decimal.Decimal `json:"revenue_confirmed"`
	RevenueCancelled    decimal.Decimal `json:"revenue_cancelled"`
}

// Repository provides access to the event ledger and the metrics tables.
// InTx yields a transaction-scoped Repository; every write made through it is
// committed or rolled back as one unit.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error

	// Event ledger
	TryRecordEvent(ctx context.Context, event *models.OrderEvent) (bool, error)
	ListRecentEvents(ctx context.Context, offset, limit int) ([]models.OrderEvent, error)
	CountEvents(ctx context.Context) (int64, error)
	ForEachEvent(ctx context.Context, batchSize int, fn func(models.OrderEvent) error) error

	// Metrics increment-merge
	IncrementDaily(ctx context.Context, date time.Time, delta DailyDelta) error
	IncrementHourly(ctx context.Context, bucket time.Time, delta HourlyDelta) error
	ApplyProductDelta(ctx context.Context, productID int64, delta ProductDelta) error
	ResetMetrics(ctx context.Context) error

	// Metrics reads
	GetDaily(ctx context.Context, date time.Time) (*models.DailyMetrics, error)
	ListDailyRange(ctx context.Context, from, to time.Time) ([]models.DailyMetrics, error)
	GetHourly(ctx context.Context, bucket time.Time) (*models.HourlyMetrics, error)
	TopProducts(ctx context.Context, orderBy string, limit int) ([]models.ProductMetrics, error)
	LifetimeTotals(ctx context.Context) (*LifetimeTotals, error)
}

// repo implements Repository on GORM with a write and a read-only handle,
// injected at construction rather than reached through a package global.
type repo struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// New creates a new repository instance
func New(db *gorm.DB, readOnlyDB *gorm.DB) Repository {
	return &repo{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// InTx runs fn against a transaction-scoped repository. The transaction is
// committed when fn returns nil and rolled back otherwise; reads inside the
// transaction go to the write handle so they observe uncommitted state.
func (r *repo) InTx(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repo{db: tx, readOnlyDB: tx})
	})
}
