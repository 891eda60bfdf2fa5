// Package batch provides insuree number batches: groups of freshly
// generated CHF numbers reserved together for later printing.
package batch

import (
	"context"
	"time"

	"imisbatch/internal/core/id"
)

// Batch is a named group of reserved insuree numbers, optionally scoped to
// a location. Created once; this service never mutates it afterwards.
type Batch struct {
	ID          id.ID     `db:"id" json:"id"`
	LocationID  *id.ID    `db:"location_id" json:"locationId,omitempty"`
	AuditUserID int       `db:"audit_user_id" json:"auditUserId"`
	Archived    bool      `db:"archived" json:"archived"`
	Comment     *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Number is one reserved insuree number belonging to a batch.
// PrintDate is null until the number is included in an export bundle, and
// is set exactly once.
type Number struct {
	BatchID       id.ID      `db:"batch_id" json:"batchId"`
	InsureeNumber string     `db:"insuree_number" json:"insureeNumber"`
	PrintDate     *time.Time `db:"print_date" json:"printDate,omitempty"`
}

// Summary is a batch with its number counts, for listing.
type Summary struct {
	Batch
	TotalNumbers   int `db:"total_numbers" json:"totalNumbers"`
	PrintedNumbers int `db:"printed_numbers" json:"printedNumbers"`
}

// Repository defines storage operations for batches and their numbers.
type Repository interface {
	Create(ctx context.Context, b *Batch) error
	GetByID(ctx context.Context, batchID id.ID) (*Batch, error)
	List(ctx context.Context, limit, offset int) ([]*Summary, error)

	// InsertNumber reserves one number for a batch. A unique index on the
	// number value closes the check-then-insert race between concurrent
	// generators: a lost race surfaces as a DUPLICATE_ENTRY error.
	InsertNumber(ctx context.Context, n *Number) error

	// NumberExists reports whether the number is already reserved in any batch.
	NumberExists(ctx context.Context, insureeNumber string) (bool, error)

	// MarkPrinted sets print_date on the given numbers and returns how many
	// rows changed. Rows with a print_date already set are left untouched.
	MarkPrinted(ctx context.Context, insureeNumbers []string, printedAt time.Time) (int64, error)
}
