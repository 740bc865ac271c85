package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"example.com/backstage/services/insights/internal/cache"
	"example.com/backstage/services/insights/internal/metrics"
	"example.com/backstage/services/insights/internal/models"
	"example.com/backstage/services/insights/internal/repositories"
	"example.com/backstage/services/insights/internal/search"
	"example.com/backstage/services/insights/internal/tracing"
)

// ProcessResult reports what one ProcessEvent call did. Applied is false when
// the event was already ledgered; that is the normal idempotency outcome, not
// an error.
type ProcessResult struct {
	Applied bool
	EventID uuid.UUID
}

// InsightsService owns the event-intake-and-aggregation pipeline: it ledgers
// each event exactly once and folds its increments into the daily, hourly and
// product metrics tables. It is the sole writer of those tables.
type InsightsService struct {
	repo    repositories.Repository
	cache   *cache.RedisCache
	elastic *search.ElasticClient
	ops     *metrics.Metrics
	tracer  tracing.Tracer
}

// NewInsightsService creates a new insights service
func NewInsightsService(
	repo repositories.Repository,
	redisCache *cache.RedisCache,
	elasticClient *search.ElasticClient,
	ops *metrics.Metrics,
	tracer tracing.Tracer,
) *InsightsService {
	return &InsightsService{
		repo:    repo,
		cache:   redisCache,
		elastic: elasticClient,
		ops:     ops,
		tracer:  tracer,
	}
}

// ProcessEvent records one event and applies its metric increments, all
// inside a single transaction. The ledger insert runs first and is the sole
// idempotency gate: if the (eventType, orderId) pair is already ledgered the
// transaction ends immediately with Applied=false and no metrics table is
// touched. Any failure after the ledger insert rolls the insert back too, so
// a later redelivery starts from a clean slate.
//
// Day and hour bucket keys derive from the processing instant, not from any
// timestamp in the payload; late-arriving events are attributed to when they
// were processed.
func (s *InsightsService) ProcessEvent(ctx context.Context, event *models.InboundEvent, correlationID string) (ProcessResult, error) {
	txn := s.tracer.StartTransaction("process-event")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "event_type", event.EventType)
	s.tracer.AddAttribute(txn, "order_id", event.OrderID)

	now := time.Now().UTC()
	record := &models.OrderEvent{
		ID:         uuid.New(),
		EventType:  event.EventType,
		OrderID:    event.OrderID,
		UserID:     event.UserID,
		Payload:    event.Payload,
		ReceivedAt: now,
	}
	if correlationID != "" {
		record.CorrelationID = &correlationID
	}

	applied := false
	err := s.repo.InTx(ctx, func(tx repositories.Repository) error {
		span := s.tracer.StartSpan("ledger-try-record", txn)
		inserted, err := tx.TryRecordEvent(ctx, record)
		span.End()
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		applied = true

		applySpan := s.tracer.StartSpan("apply-increments", txn)
		defer applySpan.End()
		return s.applyEvent(ctx, tx, event.EventType, event.Payload, now)
	})

	if err != nil {
		s.tracer.RecordError(txn, err)
		s.ops.IncrementCounter(metrics.CounterEventsFailed)
		return ProcessResult{}, errors.Wrap(err, "failed to process event")
	}

	if !applied {
		log.Debug().
			Str("event_type", event.EventType).
			Int64("order_id", event.OrderID).
			Str("correlation_id", correlationID).
			Msg("Duplicate event, already ledgered")
		s.ops.IncrementCounter(metrics.CounterEventsDuplicate)
		return ProcessResult{Applied: false}, nil
	}

	s.ops.IncrementCounter(metrics.CounterEventsApplied)
	log.Info().
		Str("event_id", record.ID.String()).
		Str("event_type", event.EventType).
		Int64("order_id", event.OrderID).
		Str("correlation_id", correlationID).
		Msg("Event applied")

	// Post-commit, best-effort: mirror the event to the search index and drop
	// the cached snapshot for the touched date. Neither can fail the event.
	if s.elastic != nil {
		if err := s.elastic.IndexEvent(ctx, record); err != nil {
			log.Warn().Err(err).Str("event_id", record.ID.String()).Msg("Failed to index event")
		}
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.DailyKey(models.DayBucket(now)), cache.LifetimeKey()); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate metrics cache")
		}
	}

	return ProcessResult{Applied: true, EventID: record.ID}, nil
}

// applyEvent dispatches one event's increments against a transaction-scoped
// repository. Unrecognized kinds contribute nothing; the caller has already
// ledgered them. Missing or malformed monetary fields decode to zero, so a
// degenerate payload still counts the event without blocking it.
func (s *InsightsService) applyEvent(ctx context.Context, tx repositories.Repository, eventType string, rawPayload []byte, instant time.Time) error {
	day := models.DayBucket(instant)
	hour := models.HourBucket(instant)

	switch models.ParseEventKind(eventType) {
	case models.KindOrderCreated:
		if err := tx.IncrementDaily(ctx, day, repositories.DailyDelta{OrdersCreated: 1}); err != nil {
			return err
		}
		return tx.IncrementHourly(ctx, hour, repositories.HourlyDelta{OrderCount: 1})

	case models.KindOrderConfirmed:
		payload := models.DecodeOrderPayload(rawPayload)
		if err := tx.IncrementDaily(ctx, day, repositories.DailyDelta{
			OrdersConfirmed:  1,
			RevenueConfirmed: payload.TotalAmount,
		}); err != nil {
			return err
		}
		if err := tx.IncrementHourly(ctx, hour, repositories.HourlyDelta{Revenue: payload.TotalAmount}); err != nil {
			return err
		}
		for _, item := range payload.Items {
			lineRevenue := item.Price.Mul(decimal.NewFromInt(item.Quantity))
			err := tx.ApplyProductDelta(ctx, item.ProductID, repositories.ProductDelta{
				QuantitySold:  item.Quantity,
				Revenue:       lineRevenue,
				OrderCount:    1,
				LastOrderedAt: instant,
			})
			if err != nil {
				return err
			}
		}
		return nil

	case models.KindOrderCancelled:
		payload := models.DecodeOrderPayload(rawPayload)
		return tx.IncrementDaily(ctx, day, repositories.DailyDelta{
			OrdersCancelled:  1,
			RevenueCancelled: payload.TotalAmount,
		})

	case models.KindOrderShipped:
		return tx.IncrementDaily(ctx, day, repositories.DailyDelta{OrdersShipped: 1})

	case models.KindPaymentAuthorized:
		return tx.IncrementDaily(ctx, day, repositories.DailyDelta{PaymentSuccessCount: 1})

	case models.KindPaymentFailed:
		return tx.IncrementDaily(ctx, day, repositories.DailyDelta{PaymentFailureCount: 1})

	default:
		log.Warn().Str("event_type", eventType).Msg("Unrecognized event type, ledgered without aggregation")
		s.ops.IncrementCounter(metrics.CounterEventsUnknownKind)
		return nil
	}
}

// RebuildMetrics re-derives the three metrics tables from the event ledger
// inside one transaction: the tables are emptied and every ledgered event is
// re-applied in received order, bucketed by its original receipt instant so
// the rebuilt rows match what incremental processing produced.
func (s *InsightsService) RebuildMetrics(ctx context.Context, batchSize int) (int64, error) {
	txn := s.tracer.StartTransaction("rebuild-metrics")
	defer s.tracer.EndTransaction(txn)

	var replayed int64
	err := s.repo.InTx(ctx, func(tx repositories.Repository) error {
		if err := tx.ResetMetrics(ctx); err != nil {
			return err
		}

		return tx.ForEachEvent(ctx, batchSize, func(event models.OrderEvent) error {
			if err := s.applyEvent(ctx, tx, event.EventType, event.Payload, event.ReceivedAt); err != nil {
				return errors.Wrapf(err, "failed to re-apply event %s", event.ID)
			}
			replayed++
			return nil
		})
	})

	if err != nil {
		s.tracer.RecordError(txn, err)
		return 0, errors.Wrap(err, "failed to rebuild metrics")
	}

	log.Info().Int64("events_replayed", replayed).Msg("Metrics rebuilt from ledger")
	return replayed, nil
}
