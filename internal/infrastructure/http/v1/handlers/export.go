package handlers

import (
	"os"

	"github.com/gin-gonic/gin"

	"imisbatch/internal/core/apperror"
	"imisbatch/internal/core/id"
	"imisbatch/internal/domain/export"
	"imisbatch/internal/infrastructure/http/v1/dto"
	"imisbatch/pkg/logger"
)

// ExportHandler serves print-bundle exports.
type ExportHandler struct {
	*BaseHandler
	service *export.Service
}

// NewExportHandler creates an export handler.
func NewExportHandler(service *export.Service) *ExportHandler {
	return &ExportHandler{
		BaseHandler: NewBaseHandler(),
		service:     service,
	}
}

// Export bundles unprinted insuree numbers into a zip download and marks
// them printed, unless dryRun is set. Responds 204 when nothing matches.
// POST /api/v1/exports?batch=&amount=&dryRun=
func (h *ExportHandler) Export(c *gin.Context) {
	var query dto.ExportQuery
	if !h.BindQuery(c, &query) {
		return
	}

	opts := export.Options{
		Amount: query.Amount,
		DryRun: query.DryRun,
	}
	if query.Batch != nil {
		batchID, err := id.Parse(*query.Batch)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid batch id").WithDetail("batch", *query.Batch))
			return
		}
		opts.BatchID = &batchID
	}

	result, err := h.service.ExportInsurees(c.Request.Context(), opts)
	if err != nil {
		h.Error(c, err)
		return
	}
	if result == nil {
		h.NoContent(c)
		return
	}

	defer func() {
		if err := os.Remove(result.ArchivePath); err != nil {
			logger.Warn(c.Request.Context(), "failed to remove export archive",
				"path", result.ArchivePath,
				"error", err,
			)
		}
	}()

	c.FileAttachment(result.ArchivePath, "insuree_export.zip")
}
