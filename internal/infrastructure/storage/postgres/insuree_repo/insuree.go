// Package insuree_repo provides read access to insuree records in
// PostgreSQL. Insurees are owned by the registration system; this service
// never writes to the table.
package insuree_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"imisbatch/internal/core/id"
	"imisbatch/internal/domain/insuree"
	"imisbatch/internal/infrastructure/storage/postgres"
)

// Compile-time check.
var _ insuree.Repository = (*InsureeRepo)(nil)

// InsureeRepo reads insuree records.
type InsureeRepo struct {
	txManager *postgres.TxManager
}

// NewInsureeRepo creates an insuree repository.
func NewInsureeRepo(txManager *postgres.TxManager) *InsureeRepo {
	return &InsureeRepo{txManager: txManager}
}

func (r *InsureeRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// ExistsByCHFID reports whether an insuree already holds the number.
func (r *InsureeRepo) ExistsByCHFID(ctx context.Context, chfID string) (bool, error) {
	q := r.builder().
		Select("1").
		From("insuree").
		Where(squirrel.Eq{"chf_id": chfID}).
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
		return false, fmt.Errorf("exists by chf_id: %w", err)
	}
	return true, nil
}

// ListUnprinted returns insurees joined to unprinted batch numbers. The
// matched batch-number rows are locked (FOR UPDATE OF n) so a concurrent
// export against an overlapping filter blocks until this transaction ends;
// the row cap is the adapter's single limit concept, never inlined SQL.
func (r *InsureeRepo) ListUnprinted(ctx context.Context, batchID *id.ID, limit int) ([]*insuree.Insuree, error) {
	q := r.builder().
		Select("i.chf_id", "i.other_names", "i.last_name", "i.dob", "i.gender", "i.photo").
		From("insuree i").
		InnerJoin("insuree_batch_number n ON n.insuree_number = i.chf_id").
		Where(squirrel.Eq{"n.print_date": nil}).
		OrderBy("i.chf_id")

	if batchID != nil {
		q = q.Where(squirrel.Eq{"n.batch_id": *batchID})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	q = q.Suffix("FOR UPDATE OF n")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*insuree.Insuree
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list unprinted: %w", err)
	}
	return items, nil
}
