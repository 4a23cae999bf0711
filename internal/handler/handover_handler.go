package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/response"
)

type handoverService interface {
	Create(ctx context.Context, req dto.CreateHandoverRequest, actor *models.JWTClaims) (*models.Handover, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Handover, error)
	List(ctx context.Context, query dto.StatusQuery, actor *models.JWTClaims) ([]models.Handover, *models.Pagination, error)
	Verify(ctx context.Context, id string, actor *models.JWTClaims) (*models.Handover, error)
	Reject(ctx context.Context, id string, req dto.RejectHandoverRequest, actor *models.JWTClaims) (*models.Handover, error)
}

// HandoverHandler exposes handover verification endpoints.
type HandoverHandler struct {
	handovers handoverService
}

// NewHandoverHandler constructs HandoverHandler.
func NewHandoverHandler(handovers handoverService) *HandoverHandler {
	return &HandoverHandler{handovers: handovers}
}

// Create godoc
// @Summary Request handover verification
// @Description Exactly one of listingId and tradeOfferId must be given.
// @Tags Handovers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateHandoverRequest true "Handover payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /handovers [post]
func (h *HandoverHandler) Create(c *gin.Context) {
	var req dto.CreateHandoverRequest
	if !bindJSON(c, &req) {
		return
	}
	handover, err := h.handovers.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, handover)
}

// Get godoc
// @Summary Get handover detail
// @Tags Handovers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Handover ID"
// @Success 200 {object} response.Envelope
// @Router /handovers/{id} [get]
func (h *HandoverHandler) Get(c *gin.Context) {
	handover, err := h.handovers.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, handover)
}

// List godoc
// @Summary List handovers for review
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/handovers [get]
func (h *HandoverHandler) List(c *gin.Context) {
	var query dto.StatusQuery
	if !bindQuery(c, &query) {
		return
	}
	handovers, pagination, err := h.handovers.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, handovers, pagination)
}

// Verify godoc
// @Summary Verify a pending handover
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Handover ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/handovers/{id}/verify [post]
func (h *HandoverHandler) Verify(c *gin.Context) {
	handover, err := h.handovers.Verify(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, handover)
}

// Reject godoc
// @Summary Reject a pending handover
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Handover ID"
// @Param payload body dto.RejectHandoverRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/handovers/{id}/reject [post]
func (h *HandoverHandler) Reject(c *gin.Context) {
	var req dto.RejectHandoverRequest
	if !bindJSON(c, &req) {
		return
	}
	handover, err := h.handovers.Reject(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, handover)
}
