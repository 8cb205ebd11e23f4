package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/domain/usage"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/postgres"
	"github.com/meterline/meterline/internal/types"
)

type usageRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewUsageRepository(db *postgres.DB, log *logger.Logger) usage.Repository {
	return &usageRepository{
		db:     db,
		logger: log,
	}
}

const fetchCycleRecordsQuery = `
SELECT id, group_name, subscription_id, product_variation_id, quantity, start_time, end_time, created_at, updated_at
FROM usage_records
WHERE group_name = $1`

func (r *usageRepository) FetchCycleRecords(ctx context.Context, groupName string, subscriptionID string, cycle *types.BillingCycle) ([]*usage.UsageRecord, error) {
	q := r.db.GetQuerier(ctx)

	query := fetchCycleRecordsQuery
	args := []interface{}{groupName}

	if subscriptionID != "" {
		args = append(args, subscriptionID)
		query += ` AND subscription_id = $2`
	}
	if cycle != nil {
		// Overlap test: records with no end are still accruing and match
		// any cycle they started before the end of.
		args = append(args, cycle.Start, cycle.End)
		n := len(args)
		query += fmt.Sprintf(` AND (end_time IS NULL OR end_time > $%d) AND start_time < $%d`, n-1, n)
	}
	query += ` ORDER BY start_time ASC, id ASC`

	var records []*usage.UsageRecord
	if err := q.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch usage records").
			WithReportableDetails(map[string]any{
				"group_name":      groupName,
				"subscription_id": subscriptionID,
			}).
			Mark(ierr.ErrDatabase)
	}

	return records, nil
}

const insertRecordQuery = `
INSERT INTO usage_records (group_name, subscription_id, product_variation_id, quantity, start_time, end_time, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

const updateRecordQuery = `
UPDATE usage_records
SET group_name = $1, subscription_id = $2, product_variation_id = $3, quantity = $4, start_time = $5, end_time = $6, updated_at = $7
WHERE id = $8`

func (r *usageRepository) SetRecords(ctx context.Context, records []*usage.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
	}

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.GetQuerier(ctx)
		now := time.Now().UTC()

		for _, rec := range records {
			rec.UpdatedAt = now

			if rec.Persisted() {
				res, err := q.ExecContext(ctx, updateRecordQuery,
					rec.GroupName,
					rec.SubscriptionID,
					rec.ProductVariationID,
					rec.Quantity,
					rec.Start,
					rec.End,
					rec.UpdatedAt,
					rec.ID,
				)
				if err != nil {
					return ierr.WithError(err).
						WithHint("Failed to update usage record").
						WithReportableDetails(map[string]any{"id": rec.ID}).
						Mark(ierr.ErrDatabase)
				}

				count, err := res.RowsAffected()
				if err != nil {
					return ierr.WithError(err).
						WithHint("Failed to update usage record").
						Mark(ierr.ErrDatabase)
				}
				// The number of rows matched had better be exactly one.
				if count != 1 {
					return ierr.NewErrorf("usage record %d no longer exists in storage", rec.ID).
						WithHint("Stored usage records diverged from the in-memory working set").
						WithReportableDetails(map[string]any{"id": rec.ID}).
						Mark(ierr.ErrConsistency)
				}
			} else {
				if rec.CreatedAt.IsZero() {
					rec.CreatedAt = now
				}
				err := q.QueryRowContext(ctx, insertRecordQuery,
					rec.GroupName,
					rec.SubscriptionID,
					rec.ProductVariationID,
					rec.Quantity,
					rec.Start,
					rec.End,
					rec.CreatedAt,
					rec.UpdatedAt,
				).Scan(&rec.ID)
				if err != nil {
					return ierr.WithError(err).
						WithHint("Failed to insert usage record").
						WithReportableDetails(map[string]any{
							"group_name":      rec.GroupName,
							"subscription_id": rec.SubscriptionID,
						}).
						Mark(ierr.ErrDatabase)
				}
			}
		}

		return nil
	})
}

const deleteRecordQuery = `DELETE FROM usage_records WHERE id = $1`

func (r *usageRepository) DeleteRecords(ctx context.Context, records []*usage.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.GetQuerier(ctx)

		for _, rec := range records {
			// Records without an ID never existed in storage.
			if !rec.Persisted() {
				continue
			}
			if _, err := q.ExecContext(ctx, deleteRecordQuery, rec.ID); err != nil {
				return ierr.WithError(err).
					WithHint("Failed to delete usage record").
					WithReportableDetails(map[string]any{"id": rec.ID}).
					Mark(ierr.ErrDatabase)
			}
		}

		return nil
	})
}
