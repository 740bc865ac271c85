package repositories

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm/clause"

	"example.com/backstage/services/insights/internal/models"
)

// TryRecordEvent inserts a ledger row if no row exists for the event's
// (event_type, order_id) pair. It reports true when this call inserted the
// row and false when the pair was already ledgered. Duplicate delivery is an
// expected outcome, so the loser of a race gets (false, nil), not an error.
//
// The insert is a single atomic INSERT ... ON CONFLICT DO NOTHING so that
// concurrent callers racing on the same pair observe exactly one winner.
func (r *repo) TryRecordEvent(ctx context.Context, event *models.OrderEvent) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_type"}, {Name: "order_id"}},
		DoNothing: true,
	}).Create(event)

	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to record event")
	}

	return result.RowsAffected > 0, nil
}

// ListRecentEvents returns ledger rows newest-first for the browse endpoint.
func (r *repo) ListRecentEvents(ctx context.Context, offset, limit int) ([]models.OrderEvent, error) {
	var events []models.OrderEvent
	err := r.readOnlyDB.WithContext(ctx).
		Order("received_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	return events, nil
}

// CountEvents returns the total number of ledgered events.
func (r *repo) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.OrderEvent{}).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count events")
	}
	return count, nil
}

// ForEachEvent walks the ledger oldest-first in fixed-size pages, calling fn
// for every row. Used by the rebuild path.
func (r *repo) ForEachEvent(ctx context.Context, batchSize int, fn func(models.OrderEvent) error) error {
	offset := 0
	for {
		var events []models.OrderEvent
		err := r.db.WithContext(ctx).
			Order("received_at ASC, id ASC").
			Offset(offset).
			Limit(batchSize).
			Find(&events).Error
		if err != nil {
			return errors.Wrap(err, "failed to read event batch")
		}

		for _, event := range events {
			if err := fn(event); err != nil {
				return err
			}
		}

		if len(events) < batchSize {
			return nil
		}
		offset += batchSize
	}
}
