package repositories

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/backstage/services/insights/internal/models"
)

// The metrics tables are only ever mutated through the upserts below. Each is
// a single INSERT ... ON CONFLICT ... DO UPDATE with an addition clause, so
// two consumers landing on the same row never lose an update the way a
// fetch-then-write pair would.

// IncrementDaily adds delta to the daily row for date, creating the row with
// the delta as initial values when it does not exist yet.
func (r *repo) IncrementDaily(ctx context.Context, date time.Time, delta DailyDelta) error {
	row := models.DailyMetrics{
		Date:                date,
		OrdersCreated:       delta.OrdersCreated,
		OrdersConfirmed:     delta.OrdersConfirmed,
		OrdersCancelled:     delta.OrdersCancelled,
		OrdersShipped:       delta.OrdersShipped,
		PaymentSuccessCount: delta.PaymentSuccessCount,
		PaymentFailureCount: delta.PaymentFailureCount,
		RevenueConfirmed:    delta.RevenueConfirmed,
		RevenueCancelled:    delta.RevenueCancelled,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"orders_created":        gorm.Expr("daily_metrics.orders_created + excluded.orders_created"),
			"orders_confirmed":      gorm.Expr("daily_metrics.orders_confirmed + excluded.orders_confirmed"),
			"orders_cancelled":      gorm.Expr("daily_metrics.orders_cancelled + excluded.orders_cancelled"),
			"orders_shipped":        gorm.Expr("daily_metrics.orders_shipped + excluded.orders_shipped"),
			"payment_success_count": gorm.Expr("daily_metrics.payment_success_count + excluded.payment_success_count"),
			"payment_failure_count": gorm.Expr("daily_metrics.payment_failure_count + excluded.payment_failure_count"),
			"revenue_confirmed":     gorm.Expr("daily_metrics.revenue_confirmed + excluded.revenue_confirmed"),
			"revenue_cancelled":     gorm.Expr("daily_metrics.revenue_cancelled + excluded.revenue_cancelled"),
			"updated_at":            gorm.Expr("now()"),
		}),
	}).Create(&row).Error

	if err != nil {
		return errors.Wrap(err, "failed to upsert daily metrics")
	}
	return nil
}

// IncrementHourly adds delta to the hourly row for bucket.
func (r *repo) IncrementHourly(ctx context.Context, bucket time.Time, delta HourlyDelta) error {
	row := models.HourlyMetrics{
		Bucket:     bucket,
		OrderCount: delta.OrderCount,
		Revenue:    delta.Revenue,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "bucket"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"order_count": gorm.Expr("hourly_metrics.order_count + excluded.order_count"),
			"revenue":     gorm.Expr("hourly_metrics.revenue + excluded.revenue"),
			"updated_at":  gorm.Expr("now()"),
		}),
	}).Create(&row).Error

	if err != nil {
		return errors.Wrap(err, "failed to upsert hourly metrics")
	}
	return nil
}

// ApplyProductDelta adds the numeric fields of delta to the product row and
// overwrites last_ordered_at, which is last-write-wins rather than merged.
func (r *repo) ApplyProductDelta(ctx context.Context, productID int64, delta ProductDelta) error {
	lastOrderedAt := delta.LastOrderedAt
	row := models.ProductMetrics{
		ProductID:         productID,
		TotalQuantitySold: delta.QuantitySold,
		TotalRevenue:      delta.Revenue,
		OrderCount:        delta.OrderCount,
		LastOrderedAt:     &lastOrderedAt,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_quantity_sold": gorm.Expr("product_metrics.total_quantity_sold + excluded.total_quantity_sold"),
			"total_revenue":       gorm.Expr("product_metrics.total_revenue + excluded.total_revenue"),
			"order_count":         gorm.Expr("product_metrics.order_count + excluded.order_count"),
			"last_ordered_at":     gorm.Expr("excluded.last_ordered_at"),
			"updated_at":          gorm.Expr("now()"),
		}),
	}).Create(&row).Error

	if err != nil {
		return errors.Wrap(err, "failed to upsert product metrics")
	}
	return nil
}

// ResetMetrics empties the three metrics tables. Only the rebuild path uses
// it, inside the same transaction that re-applies the ledger.
func (r *repo) ResetMetrics(ctx context.Context) error {
	for _, model := range []interface{}{
		&models.DailyMetrics{},
		&models.HourlyMetrics{},
		&models.ProductMetrics{},
	} {
		if err := r.db.WithContext(ctx).Where("1 = 1").Delete(model).Error; err != nil {
			return errors.Wrap(err, "failed to reset metrics table")
		}
	}
	return nil
}

// GetDaily returns the daily row for date, or ErrNotFound.
func (r *repo) GetDaily(ctx context.Context, date time.Time) (*models.DailyMetrics, error) {
	var row models.DailyMetrics
	err := r.readOnlyDB.WithContext(ctx).
		Where("date = ?", date).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get daily metrics")
	}
	return &row, nil
}

// ListDailyRange returns daily rows with from <= date <= to, ascending.
func (r *repo) ListDailyRange(ctx context.Context, from, to time.Time) ([]models.DailyMetrics, error) {
	var rows []models.DailyMetrics
	err := r.readOnlyDB.WithContext(ctx).
		Where("date >= ? AND date <= ?", from, to).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list daily metrics")
	}
	return rows, nil
}

// GetHourly returns the hourly row for bucket, or ErrNotFound.
func (r *repo) GetHourly(ctx context.Context, bucket time.Time) (*models.HourlyMetrics, error) {
	var row models.HourlyMetrics
	err := r.readOnlyDB.WithContext(ctx).
		Where("bucket = ?", bucket).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get hourly metrics")
	}
	return &row, nil
}

// TopProducts returns up to limit product rows ordered by revenue or quantity.
func (r *repo) TopProducts(ctx context.Context, orderBy string, limit int) ([]models.ProductMetrics, error) {
	column := "total_revenue"
	if orderBy == OrderByQuantity {
		column = "total_quantity_sold"
	}

	var rows []models.ProductMetrics
	err := r.readOnlyDB.WithContext(ctx).
		Order(column + " DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list top products")
	}
	return rows, nil
}

// LifetimeTotals sums every daily row into one scalar result.
func (r *repo) LifetimeTotals(ctx context.Context) (*LifetimeTotals, error) {
	var totals LifetimeTotals
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.DailyMetrics{}).
		Select(`COALESCE(SUM(orders_created), 0) AS orders_created,
			COALESCE(SUM(orders_confirmed), 0) AS orders_confirmed,
			COALESCE(SUM(orders_cancelled), 0) AS orders_cancelled,
			COALESCE(SUM(orders_shipped), 0) AS orders_shipped,
			COALESCE(SUM(payment_success_count), 0) AS payment_success_count,
			COALESCE(SUM(payment_failure_count), 0) AS payment_failure_count,
			COALESCE(SUM(revenue_confirmed), 0) AS revenue_confirmed,
			COALESCE(SUM(revenue_cancelled), 0) AS revenue_cancelled`).
		Scan(&totals).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to sum lifetime totals")
	}
	return &totals, nil
}
