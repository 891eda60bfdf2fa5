package dto

// ExportQuery narrows an export request.
type ExportQuery struct {
	Batch  *string `form:"batch" binding:"omitempty,uuid"`
	Amount int     `form:"amount" binding:"omitempty,gt=0"`
	DryRun bool    `form:"dryRun"`
}
