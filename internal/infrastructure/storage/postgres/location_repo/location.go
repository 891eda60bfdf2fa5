// Package location_repo provides read access to location reference data.
package location_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"imisbatch/internal/core/apperror"
	"imisbatch/internal/core/id"
	"imisbatch/internal/domain/location"
	"imisbatch/internal/infrastructure/storage/postgres"
)

// Compile-time check.
var _ location.Repository = (*LocationRepo)(nil)

// LocationRepo reads location records.
type LocationRepo struct {
	txManager *postgres.TxManager
}

// NewLocationRepo creates a location repository.
func NewLocationRepo(txManager *postgres.TxManager) *LocationRepo {
	return &LocationRepo{txManager: txManager}
}

func (r *LocationRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// GetByID retrieves one location.
func (r *LocationRepo) GetByID(ctx context.Context, locationID id.ID) (*location.Location, error) {
	q := r.builder().
		Select("id", "type", "code", "name", "parent_id", "valid_to").
		From("location").
		Where(squirrel.Eq{"id": locationID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var loc location.Location
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &loc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("location", locationID.String())
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &loc, nil
}

// MaxCodeLength aggregates the longest code among currently valid locations
// of the given type. Retired locations (valid_to set) are excluded.
func (r *LocationRepo) MaxCodeLength(ctx context.Context, locationType string) (int, error) {
	q := r.builder().
		Select("COALESCE(MAX(LENGTH(code)), 0)").
		From("location").
		Where(squirrel.Eq{"type": locationType}).
		Where(squirrel.Eq{"valid_to": nil})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var length int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&length); err != nil {
		return 0, fmt.Errorf("max code length: %w", err)
	}
	return length, nil
}
