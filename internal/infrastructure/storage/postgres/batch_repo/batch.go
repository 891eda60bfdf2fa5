// Package batch_repo provides the PostgreSQL implementation of the batch
// repository.
package batch_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"imisbatch/internal/core/apperror"
	"imisbatch/internal/core/id"
	"imisbatch/internal/domain/batch"
	"imisbatch/internal/infrastructure/storage/postgres"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// Compile-time check.
var _ batch.Repository = (*BatchRepo)(nil)

// BatchRepo persists batches and their reserved numbers.
type BatchRepo struct {
	txManager *postgres.TxManager
}

// NewBatchRepo creates a batch repository.
func NewBatchRepo(txManager *postgres.TxManager) *BatchRepo {
	return &BatchRepo{txManager: txManager}
}

func (r *BatchRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Create inserts a new batch row.
func (r *BatchRepo) Create(ctx context.Context, b *batch.Batch) error {
	q := r.builder().
		Insert("insuree_batch").
		Columns("id", "location_id", "audit_user_id", "archived", "comment", "created_at").
		Values(b.ID, b.LocationID, b.AuditUserID, b.Archived, b.Comment, b.CreatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert insuree_batch: %w", err)
	}
	return nil
}

// GetByID retrieves one batch.
func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*batch.Batch, error) {
	q := r.builder().
		Select("id", "location_id", "audit_user_id", "archived", "comment", "created_at").
		From("insuree_batch").
		Where(squirrel.Eq{"id": batchID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var b batch.Batch
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("insuree_batch", batchID.String())
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// List retrieves batches newest-first with printed/total number counts.
func (r *BatchRepo) List(ctx context.Context, limit, offset int) ([]*batch.Summary, error) {
	q := r.builder().
		Select(
			"b.id", "b.location_id", "b.audit_user_id", "b.archived", "b.comment", "b.created_at",
			"COUNT(n.insuree_number) AS total_numbers",
			"COUNT(n.print_date) AS printed_numbers",
		).
		From("insuree_batch b").
		LeftJoin("insuree_batch_number n ON n.batch_id = b.id").
		GroupBy("b.id").
		OrderBy("b.created_at DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*batch.Summary
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return items, nil
}

// InsertNumber reserves one number. The unique index on insuree_number is
// what makes concurrent generation safe: losing the race surfaces as a
// DUPLICATE_ENTRY error, which the batch service retries.
func (r *BatchRepo) InsertNumber(ctx context.Context, n *batch.Number) error {
	q := r.builder().
		Insert("insuree_batch_number").
		Columns("batch_id", "insuree_number", "print_date").
		Values(n.BatchID, n.InsureeNumber, n.PrintDate)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperror.NewDuplicate("insuree_batch_number", "insuree_number", n.InsureeNumber).
				WithCause(err)
		}
		return fmt.Errorf("insert insuree_batch_number: %w", err)
	}
	return nil
}

// NumberExists reports whether the number is reserved in any batch.
func (r *BatchRepo) NumberExists(ctx context.Context, insureeNumber string) (bool, error) {
	q := r.builder().
		Select("1").
		From("insuree_batch_number").
		Where(squirrel.Eq{"insuree_number": insureeNumber}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists int
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("number exists: %w", err)
	}
	return true, nil
}

// MarkPrinted sets print_date on the given unprinted numbers. Already
// printed rows keep their original timestamp.
func (r *BatchRepo) MarkPrinted(ctx context.Context, insureeNumbers []string, printedAt time.Time) (int64, error) {
	if len(insureeNumbers) == 0 {
		return 0, nil
	}

	q := r.builder().
		Update("insuree_batch_number").
		Set("print_date", printedAt).
		Where(squirrel.Eq{"insuree_number": insureeNumbers}).
		Where(squirrel.Eq{"print_date": nil})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("mark printed: %w", err)
	}
	return result.RowsAffected(), nil
}
