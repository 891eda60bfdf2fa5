package batch

import (
	"context"
	"fmt"
	"time"

	"imisbatch/internal/core/apperror"
	appctx "imisbatch/internal/core/context"
	"imisbatch/internal/core/id"
	"imisbatch/internal/domain/insuree"
	"imisbatch/internal/domain/location"
	"imisbatch/pkg/logger"
)

// MaxGenerationAttempts bounds the retry loop per reserved number.
// Collision probability is low by construction, but the loop must not spin
// forever under pathological configuration (number length barely above the
// checksum width with the value space already occupied).
const MaxGenerationAttempts = 10000

// CreateInput describes a batch creation request.
type CreateInput struct {
	Amount     int
	LocationID *id.ID
	Comment    *string
}

// Service creates batches and populates them with collision-free numbers.
type Service struct {
	repo      Repository
	insurees  insuree.Repository
	locations location.Repository
	generator *insuree.Generator
}

// NewService creates a batch service.
func NewService(
	repo Repository,
	insurees insuree.Repository,
	locations location.Repository,
	generator *insuree.Generator,
) *Service {
	return &Service{
		repo:      repo,
		insurees:  insurees,
		locations: locations,
		generator: generator,
	}
}

// Create reserves in.Amount new insuree numbers under a fresh batch.
//
// The batch row is created first so that partially generated numbers stay
// attributable, then numbers are reserved strictly sequentially: each one
// is persisted before the next is generated, so every collision check sees
// all prior numbers of the same batch. On exhaustion the batch is left in
// its partial state; retrying or discarding it is the caller's decision.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Batch, error) {
	if in.Amount < 1 {
		return nil, apperror.NewValidation("amount must be a positive integer").
			WithDetail("amount", in.Amount)
	}

	var loc *location.Location
	if in.LocationID != nil {
		var err error
		loc, err = s.locations.GetByID(ctx, *in.LocationID)
		if err != nil {
			return nil, err
		}
	}

	b := &Batch{
		ID:          id.New(),
		LocationID:  in.LocationID,
		AuditUserID: appctx.GetAuditUserID(ctx),
		Archived:    false,
		Comment:     in.Comment,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	for i := 0; i < in.Amount; i++ {
		if _, err := s.reserveNumber(ctx, b, loc); err != nil {
			// No rollback: numbers committed so far remain with the batch.
			if appErr, ok := apperror.AsAppError(err); ok {
				return nil, appErr.
					WithDetail("batch_id", b.ID.String()).
					WithDetail("generated", i)
			}
			return nil, fmt.Errorf("batch %s after reserving %d numbers: %w", b.ID, i, err)
		}
	}

	logger.Info(ctx, "insuree batch created",
		"batch_id", b.ID.String(),
		"amount", in.Amount,
		"location_id", in.LocationID,
	)
	return b, nil
}

// Get returns one batch by id.
func (s *Service) Get(ctx context.Context, batchID id.ID) (*Batch, error) {
	return s.repo.GetByID(ctx, batchID)
}

// List returns batches with their printed/total counts.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Summary, error) {
	return s.repo.List(ctx, limit, offset)
}

// reserveNumber generates candidates until one is absent from both the
// insuree store and the reserved numbers, then persists it. A duplicate-key
// conflict on insert means a concurrent generator claimed the candidate
// between check and insert; it counts as a failed attempt and is retried.
func (s *Service) reserveNumber(ctx context.Context, b *Batch, loc *location.Location) (string, error) {
	for attempt := 1; attempt <= MaxGenerationAttempts; attempt++ {
		number, err := s.generator.Generate(ctx, loc)
		if err != nil {
			// Generation errors (invalid location code, bad format config)
			// cannot be fixed by retrying.
			return "", err
		}

		taken, err := s.insurees.ExistsByCHFID(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check insuree store: %w", err)
		}
		if taken {
			continue
		}

		taken, err = s.repo.NumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check reserved numbers: %w", err)
		}
		if taken {
			continue
		}

		err = s.repo.InsertNumber(ctx, &Number{BatchID: b.ID, InsureeNumber: number})
		if err == nil {
			return number, nil
		}
		if apperror.IsDuplicate(err) {
			continue
		}
		return "", fmt.Errorf("reserve number: %w", err)
	}

	logger.Error(ctx, "insuree number generation exhausted",
		"batch_id", b.ID.String(),
		"attempts", MaxGenerationAttempts,
	)
	return "", apperror.NewGenerationExhausted(MaxGenerationAttempts)
}
