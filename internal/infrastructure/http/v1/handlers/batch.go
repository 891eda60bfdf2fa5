package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"imisbatch/internal/core/apperror"
	"imisbatch/internal/core/id"
	"imisbatch/internal/domain/batch"
	"imisbatch/internal/infrastructure/http/v1/dto"
)

// BatchHandler serves batch creation and lookups.
type BatchHandler struct {
	*BaseHandler
	service *batch.Service
}

// NewBatchHandler creates a batch handler.
func NewBatchHandler(service *batch.Service) *BatchHandler {
	return &BatchHandler{
		BaseHandler: NewBaseHandler(),
		service:     service,
	}
}

// Create reserves a new batch of insuree numbers.
// POST /api/v1/batches
func (h *BatchHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in := batch.CreateInput{
		Amount:  req.Amount,
		Comment: req.Comment,
	}
	if req.LocationID != nil {
		locationID, err := id.Parse(*req.LocationID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid location id").WithDetail("locationId", *req.LocationID))
			return
		}
		in.LocationID = &locationID
	}

	b, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewBatchResponse(b))
}

// Get returns one batch.
// GET /api/v1/batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	batchID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid batch id").WithDetail("id", c.Param("id")))
		return
	}

	b, err := h.service.Get(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewBatchResponse(b))
}

// List returns batches with number counts, newest first.
// GET /api/v1/batches?limit=&offset=
func (h *BatchHandler) List(c *gin.Context) {
	limit := h.ParseIntQuery(c, "limit", 50)
	offset := h.ParseIntQuery(c, "offset", 0)

	summaries, err := h.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.BatchSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, dto.NewBatchSummaryResponse(s))
	}
	h.OK(c, gin.H{"items": items})
}
