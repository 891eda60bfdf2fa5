// Package insuree provides the insuree read model and the CHF number
// generation logic. Insuree records are owned by the registration system;
// this service only reads them for uniqueness checks and export.
package insuree

import (
	"context"
	"time"

	"imisbatch/internal/core/id"
)

// Insuree is a member of the insurance scheme, identified by a CHF number.
type Insuree struct {
	CHFID      string    `db:"chf_id" json:"chfId"`
	OtherNames string    `db:"other_names" json:"otherNames"`
	LastName   string    `db:"last_name" json:"lastName"`
	DOB        time.Time `db:"dob" json:"dob"`
	Gender     string    `db:"gender" json:"gender"`

	// Photo is the base64-encoded JPEG stored with the record, if any.
	Photo *string `db:"photo" json:"-"`
}

// HasPhoto reports whether the insuree carries a non-empty photo.
func (i *Insuree) HasPhoto() bool {
	return i.Photo != nil && *i.Photo != ""
}

// Repository defines read access to insuree records.
type Repository interface {
	// ExistsByCHFID reports whether an insuree already holds the number.
	ExistsByCHFID(ctx context.Context, chfID string) (bool, error)

	// ListUnprinted returns insurees joined to batch numbers whose
	// print_date is null, optionally restricted to one batch and capped
	// at limit rows (0 = no cap). The matched batch-number rows must stay
	// locked until the surrounding transaction ends.
	ListUnprinted(ctx context.Context, batchID *id.ID, limit int) ([]*Insuree, error)
}
