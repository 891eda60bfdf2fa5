package dto

import (
	"time"

	"imisbatch/internal/domain/batch"
)

// CreateBatchRequest asks for amount new insuree numbers, optionally
// encoded with a location's code.
type CreateBatchRequest struct {
	Amount     int     `json:"amount" binding:"required,gt=0"`
	LocationID *string `json:"locationId" binding:"omitempty,uuid"`
	Comment    *string `json:"comment" binding:"omitempty,max=1024"`
}

// BatchResponse describes one batch.
type BatchResponse struct {
	ID          string    `json:"id"`
	LocationID  *string   `json:"locationId,omitempty"`
	AuditUserID int       `json:"auditUserId"`
	Archived    bool      `json:"archived"`
	Comment     *string   `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BatchSummaryResponse is a batch with its number counts.
type BatchSummaryResponse struct {
	BatchResponse
	TotalNumbers   int `json:"totalNumbers"`
	PrintedNumbers int `json:"printedNumbers"`
}

// NewBatchResponse converts a domain batch.
func NewBatchResponse(b *batch.Batch) BatchResponse {
	resp := BatchResponse{
		ID:          b.ID.String(),
		AuditUserID: b.AuditUserID,
		Archived:    b.Archived,
		Comment:     b.Comment,
		CreatedAt:   b.CreatedAt,
	}
	if b.LocationID != nil {
		s := b.LocationID.String()
		resp.LocationID = &s
	}
	return resp
}

// NewBatchSummaryResponse converts a domain summary.
func NewBatchSummaryResponse(s *batch.Summary) BatchSummaryResponse {
	return BatchSummaryResponse{
		BatchResponse:  NewBatchResponse(&s.Batch),
		TotalNumbers:   s.TotalNumbers,
		PrintedNumbers: s.PrintedNumbers,
	}
}
