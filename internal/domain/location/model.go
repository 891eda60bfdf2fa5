// Package location provides the location reference data consumed by
// insuree number generation. Locations form a hierarchy (region, district,
// ward, village); each carries a numeric code whose digits can be embedded
// into generated numbers.
package location

import (
	"context"
	"time"

	"imisbatch/internal/core/id"
)

// Location is a node of the administrative hierarchy.
type Location struct {
	ID   id.ID  `db:"id" json:"id"`
	Type string `db:"type" json:"type"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	// ParentID points to the enclosing location, nil for top-level regions.
	ParentID *id.ID `db:"parent_id" json:"parentId,omitempty"`

	// ValidTo is set when the location is retired. Retired locations are
	// excluded from code-length aggregation.
	ValidTo *time.Time `db:"valid_to" json:"validTo,omitempty"`
}

// Repository defines storage operations for locations.
type Repository interface {
	GetByID(ctx context.Context, locationID id.ID) (*Location, error)

	// MaxCodeLength returns the digit-length of the longest code among
	// currently valid locations of the given type.
	MaxCodeLength(ctx context.Context, locationType string) (int, error)
}
