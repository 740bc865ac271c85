package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/insights/internal/cache"
	"example.com/backstage/services/insights/internal/models"
	"example.com/backstage/services/insights/internal/repositories"
)

// Read-side operations. These only observe committed state; every write goes
// through ProcessEvent or RebuildMetrics.

// Granularities accepted by DailyRange.
const (
	GranularityDay   = "day"
	GranularityWeek  = "week"
	GranularityMonth = "month"
)

// ErrBadGranularity is returned for an unsupported bucket granularity.
var ErrBadGranularity = errors.New("granularity must be day, week or month")

const snapshotTTL = 30 * time.Second

// MetricsBucket is one day/week/month bucket of summed daily rows.
type MetricsBucket struct {
	Start  time.Time                   `json:"bucket_start"`
	Totals repositories.LifetimeTotals `json:"totals"`
}

// TodaySnapshot returns today's daily row, served from cache when possible.
// A date with no events yet yields a zero-valued row, not an error.
func (s *InsightsService) TodaySnapshot(ctx context.Context) (*models.DailyMetrics, error) {
	today := models.DayBucket(time.Now())
	key := cache.DailyKey(today)

	if s.cache != nil {
		var cached models.DailyMetrics
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	row, err := s.repo.GetDaily(ctx, today)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			row = &models.DailyMetrics{Date: today}
		} else {
			return nil, err
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, row, snapshotTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache daily snapshot")
		}
	}

	return row, nil
}

// RefreshTodaySnapshot re-primes the cached snapshot for today. The worker
// runs this periodically so dashboards stay warm between writes.
func (s *InsightsService) RefreshTodaySnapshot(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	today := models.DayBucket(time.Now())
	row, err := s.repo.GetDaily(ctx, today)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			row = &models.DailyMetrics{Date: today}
		} else {
			return err
		}
	}

	return s.cache.Set(ctx, cache.DailyKey(today), row, snapshotTTL)
}

// DailyRange scans daily rows between from and to and folds them into
// buckets of the requested granularity.
func (s *InsightsService) DailyRange(ctx context.Context, from, to time.Time, granularity string) ([]MetricsBucket, error) {
	switch granularity {
	case GranularityDay, GranularityWeek, GranularityMonth:
	default:
		return nil, ErrBadGranularity
	}

	rows, err := s.repo.ListDailyRange(ctx, models.DayBucket(from), models.DayBucket(to))
	if err != nil {
		return nil, err
	}

	var buckets []MetricsBucket
	for _, row := range rows {
		start := bucketStart(row.Date, granularity)
		if len(buckets) == 0 || !buckets[len(buckets)-1].Start.Equal(start) {
			buckets = append(buckets, MetricsBucket{Start: start})
		}

		b := &buckets[len(buckets)-1]
		b.Totals.OrdersCreated += row.OrdersCreated
		b.Totals.OrdersConfirmed += row.OrdersConfirmed
		b.Totals.OrdersCancelled += row.OrdersCancelled
		b.Totals.OrdersShipped += row.OrdersShipped
		b.Totals.PaymentSuccessCount += row.PaymentSuccessCount
		b.Totals.PaymentFailureCount += row.PaymentFailureCount
		b.Totals.RevenueConfirmed = b.Totals.RevenueConfirmed.Add(row.RevenueConfirmed)
		b.Totals.RevenueCancelled = b.Totals.RevenueCancelled.Add(row.RevenueCancelled)
	}

	return buckets, nil
}

// bucketStart maps a calendar date onto the start of its bucket: the date
// itself, the Monday of its ISO week, or the first of its month.
func bucketStart(date time.Time, granularity string) time.Time {
	d := models.DayBucket(date)
	switch granularity {
	case GranularityWeek:
		weekday := int(d.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return d.AddDate(0, 0, 1-weekday)
	case GranularityMonth:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

// TopProducts returns up to limit product rows ordered by revenue or quantity.
func (s *InsightsService) TopProducts(ctx context.Context, orderBy string, limit int) ([]models.ProductMetrics, error) {
	if orderBy != repositories.OrderByRevenue && orderBy != repositories.OrderByQuantity {
		return nil, errors.Errorf("unsupported sort order %q", orderBy)
	}
	return s.repo.TopProducts(ctx, orderBy, limit)
}

// Lifetime returns full-table scalar sums, cached briefly.
func (s *InsightsService) Lifetime(ctx context.Context) (*repositories.LifetimeTotals, error) {
	if s.cache != nil {
		var cached repositories.LifetimeTotals
		if err := s.cache.Get(ctx, cache.LifetimeKey(), &cached); err == nil {
			return &cached, nil
		}
	}

	totals, err := s.repo.LifetimeTotals(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.LifetimeKey(), totals, snapshotTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache lifetime totals")
		}
	}

	return totals, nil
}

// ErrSearchUnavailable is returned when no search backend is configured.
var ErrSearchUnavailable = errors.New("event search is not configured")

// SearchEvents runs a raw query against the mirrored event index.
func (s *InsightsService) SearchEvents(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	if s.elastic == nil {
		return nil, ErrSearchUnavailable
	}
	return s.elastic.SearchEvents(ctx, query)
}

// RecentEvents pages through the ledger newest-first for replay tooling.
func (s *InsightsService) RecentEvents(ctx context.Context, offset, limit int) ([]models.OrderEvent, int64, error) {
	events, err := s.repo.ListRecentEvents(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.repo.CountEvents(ctx)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
