package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"example.com/backstage/services/insights/internal/models"
	"example.com/backstage/services/insights/internal/repositories"
)

// fakeRepo is an in-memory Repository. InTx snapshots the state and restores
// it when the callback fails, which mirrors the all-or-nothing behavior the
// real transaction gives us and lets the tests assert rollbacks.
type fakeRepo struct {
	events  map[string]models.OrderEvent
	daily   map[string]models.DailyMetrics
	hourly  map[string]models.HourlyMetrics
	product map[int64]models.ProductMetrics

	failDaily   error
	failHourly  error
	failProduct error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:  make(map[string]models.OrderEvent),
		daily:   make(map[string]models.DailyMetrics),
		hourly:  make(map[string]models.HourlyMetrics),
		product: make(map[int64]models.ProductMetrics),
	}
}

func dedupKey(eventType string, orderID int64) string {
	return fmt.Sprintf("%s|%d", eventType, orderID)
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func hourKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15")
}

func (f *fakeRepo) snapshot() *fakeRepo {
	clone := newFakeRepo()
	for k, v := range f.events {
		clone.events[k] = v
	}
	for k, v := range f.daily {
		clone.daily[k] = v
	}
	for k, v := range f.hourly {
		clone.hourly[k] = v
	}
	for k, v := range f.product {
		clone.product[k] = v
	}
	return clone
}

func (f *fakeRepo) restore(snap *fakeRepo) {
	f.events = snap.events
	f.daily = snap.daily
	f.hourly = snap.hourly
	f.product = snap.product
}

func (f *fakeRepo) InTx(ctx context.Context, fn func(repositories.Repository) error) error {
	snap := f.snapshot()
	if err := fn(f); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeRepo) TryRecordEvent(ctx context.Context, event *models.OrderEvent) (bool, error) {
	key := dedupKey(event.EventType, event.OrderID)
	if _, exists := f.events[key]; exists {
		return false, nil
	}
	f.events[key] = *event
	return true, nil
}

func (f *fakeRepo) ListRecentEvents(ctx context.Context, offset, limit int) ([]models.OrderEvent, error) {
	all := f.allEvents()
	sort.Slice(all, func(i, j int) bool { return all[i].ReceivedAt.After(all[j].ReceivedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeRepo) CountEvents(ctx context.Context) (int64, error) {
	return int64(len(f.events)), nil
}

func (f *fakeRepo) ForEachEvent(ctx context.Context, batchSize int, fn func(models.OrderEvent) error) error {
	all := f.allEvents()
	sort.Slice(all, func(i, j int) bool { return all[i].ReceivedAt.Before(all[j].ReceivedAt) })
	for _, event := range all {
		if err := fn(event); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRepo) allEvents() []models.OrderEvent {
	all := make([]models.OrderEvent, 0, len(f.events))
	for _, event := range f.events {
		all = append(all, event)
	}
	return all
}

func (f *fakeRepo) IncrementDaily(ctx context.Context, date time.Time, delta repositories.DailyDelta) error {
	if f.failDaily != nil {
		return f.failDaily
	}
	row := f.daily[dayKey(date)]
	row.Date = date
	row.OrdersCreated += delta.OrdersCreated
	row.OrdersConfirmed += delta.OrdersConfirmed
	row.OrdersCancelled += delta.OrdersCancelled
	row.OrdersShipped += delta.OrdersShipped
	row.PaymentSuccessCount += delta.PaymentSuccessCount
	row.PaymentFailureCount += delta.PaymentFailureCount
	row.RevenueConfirmed = row.RevenueConfirmed.Add(delta.RevenueConfirmed)
	row.RevenueCancelled = row.RevenueCancelled.Add(delta.RevenueCancelled)
	f.daily[dayKey(date)] = row
	return nil
}

func (f *fakeRepo) IncrementHourly(ctx context.Context, bucket time.Time, delta repositories.HourlyDelta) error {
	if f.failHourly != nil {
		return f.failHourly
	}
	row := f.hourly[hourKey(bucket)]
	row.Bucket = bucket
	row.OrderCount += delta.OrderCount
	row.Revenue = row.Revenue.Add(delta.Revenue)
	f.hourly[hourKey(bucket)] = row
	return nil
}

func (f *fakeRepo) ApplyProductDelta(ctx context.Context, productID int64, delta repositories.ProductDelta) error {
	if f.failProduct != nil {
		return f.failProduct
	}
	row := f.product[productID]
	row.ProductID = productID
	row.TotalQuantitySold += delta.QuantitySold
	row.TotalRevenue = row.TotalRevenue.Add(delta.Revenue)
	row.OrderCount += delta.OrderCount
	lastOrderedAt := delta.LastOrderedAt
	row.LastOrderedAt = &lastOrderedAt
	f.product[productID] = row
	return nil
}

func (f *fakeRepo) ResetMetrics(ctx context.Context) error {
	f.daily = make(map[string]models.DailyMetrics)
	f.hourly = make(map[string]models.HourlyMetrics)
	f.product = make(map[int64]models.ProductMetrics)
	return nil
}

func (f *fakeRepo) GetDaily(ctx context.Context, date time.Time) (*models.DailyMetrics, error) {
	row, exists := f.daily[dayKey(date)]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	return &row, nil
}

func (f *fakeRepo) ListDailyRange(ctx context.Context, from, to time.Time) ([]models.DailyMetrics, error) {
	var rows []models.DailyMetrics
	for _, row := range f.daily {
		if !row.Date.Before(from) && !row.Date.After(to) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

func (f *fakeRepo) GetHourly(ctx context.Context, bucket time.Time) (*models.HourlyMetrics, error) {
	row, exists := f.hourly[hourKey(bucket)]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	return &row, nil
}

func (f *fakeRepo) TopProducts(ctx context.Context, orderBy string, limit int) ([]models.ProductMetrics, error) {
	var rows []models.ProductMetrics
	for _, row := range f.product {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if orderBy == repositories.OrderByQuantity {
			return rows[i].TotalQuantitySold > rows[j].TotalQuantitySold
		}
		return rows[i].TotalRevenue.GreaterThan(rows[j].TotalRevenue)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeRepo) LifetimeTotals(ctx context.Context) (*repositories.LifetimeTotals, error) {
	var totals repositories.LifetimeTotals
	for _, row := range f.daily {
		totals.OrdersCreated += row.OrdersCreated
		totals.OrdersConfirmed += row.OrdersConfirmed
		totals.OrdersCancelled += row.OrdersCancelled
		totals.OrdersShipped += row.OrdersShipped
		totals.PaymentSuccessCount += row.PaymentSuccessCount
		totals.PaymentFailureCount += row.PaymentFailureCount
		totals.RevenueConfirmed = totals.RevenueConfirmed.Add(row.RevenueConfirmed)
		totals.RevenueCancelled = totals.RevenueCancelled.Add(row.RevenueCancelled)
	}
	return &totals, nil
}
