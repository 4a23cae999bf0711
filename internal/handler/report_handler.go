package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/response"
)

type reportService interface {
	Create(ctx context.Context, listingID string, req dto.CreateReportRequest, actor *models.JWTClaims) (*models.ListingReport, error)
	List(ctx context.Context, query dto.StatusQuery, actor *models.JWTClaims) ([]models.ListingReport, *models.Pagination, error)
	Resolve(ctx context.Context, id string, req dto.ResolveReportRequest, actor *models.JWTClaims) (*models.ListingReport, error)
	Reject(ctx context.Context, id string, req dto.ResolveReportRequest, actor *models.JWTClaims) (*models.ListingReport, error)
}

// ReportHandler exposes listing moderation endpoints.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Create godoc
// @Summary Report a listing
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Listing ID"
// @Param payload body dto.CreateReportRequest true "Report payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "ALREADY_REPORTED"
// @Failure 429 {object} response.Envelope
// @Router /listings/{id}/reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	var req dto.CreateReportRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := h.reports.Create(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// List godoc
// @Summary List listing reports
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	var query dto.StatusQuery
	if !bindQuery(c, &query) {
		return
	}
	reports, pagination, err := h.reports.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, reports, pagination)
}

// Resolve godoc
// @Summary Resolve an open report
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param payload body dto.ResolveReportRequest false "Resolution note"
// @Success 200 {object} response.Envelope
// @Router /admin/reports/{id}/resolve [post]
func (h *ReportHandler) Resolve(c *gin.Context) {
	h.close(c, h.reports.Resolve)
}

// Reject godoc
// @Summary Reject an open report
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param payload body dto.ResolveReportRequest false "Resolution note"
// @Success 200 {object} response.Envelope
// @Router /admin/reports/{id}/reject [post]
func (h *ReportHandler) Reject(c *gin.Context) {
	h.close(c, h.reports.Reject)
}

func (h *ReportHandler) close(c *gin.Context, apply func(context.Context, string, dto.ResolveReportRequest, *models.JWTClaims) (*models.ListingReport, error)) {
	var req dto.ResolveReportRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	report, err := apply(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}
