package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/response"
)

type listingService interface {
	Create(ctx context.Context, req dto.CreateListingRequest, actor *models.JWTClaims) (*models.Listing, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Listing, error)
	List(ctx context.Context, query dto.ListingQuery) ([]models.Listing, *models.Pagination, error)
	ListMine(ctx context.Context, query dto.PageQuery, actor *models.JWTClaims) ([]models.Listing, *models.Pagination, error)
	Update(ctx context.Context, id string, req dto.UpdateListingRequest, actor *models.JWTClaims) (*models.Listing, error)
	Publish(ctx context.Context, id string, actor *models.JWTClaims) (*models.Listing, error)
	Archive(ctx context.Context, id string, actor *models.JWTClaims) (*models.Listing, error)
	MarkSold(ctx context.Context, id string, actor *models.JWTClaims) (*models.Listing, error)
	Events(ctx context.Context, id string, actor *models.JWTClaims) ([]models.Event, error)
}

// ListingHandler exposes sale listing endpoints.
type ListingHandler struct {
	listings listingService
}

// NewListingHandler constructs ListingHandler.
func NewListingHandler(listings listingService) *ListingHandler {
	return &ListingHandler{listings: listings}
}

// List godoc
// @Summary Browse public listings
// @Tags Listings
// @Produce json
// @Param cardId query string false "Filter by card"
// @Param sellerId query string false "Filter by seller"
// @Param status query string false "PUBLISHED (default) or SOLD"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /listings [get]
func (h *ListingHandler) List(c *gin.Context) {
	var query dto.ListingQuery
	if !bindQuery(c, &query) {
		return
	}
	listings, pagination, err := h.listings.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, listings, pagination)
}

// Mine godoc
// @Summary List the caller's listings in every state
// @Tags Listings
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /me/listings [get]
func (h *ListingHandler) Mine(c *gin.Context) {
	var query dto.PageQuery
	if !bindQuery(c, &query) {
		return
	}
	listings, pagination, err := h.listings.ListMine(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, listings, pagination)
}

// Get godoc
// @Summary Get listing detail
// @Description Drafts and archived listings are visible to their owner only.
// @Tags Listings
// @Produce json
// @Param id path string true "Listing ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /listings/{id} [get]
func (h *ListingHandler) Get(c *gin.Context) {
	listing, err := h.listings.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, listing)
}

// Create godoc
// @Summary Create a draft listing
// @Tags Listings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateListingRequest true "Listing payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /listings [post]
func (h *ListingHandler) Create(c *gin.Context) {
	var req dto.CreateListingRequest
	if !bindJSON(c, &req) {
		return
	}
	listing, err := h.listings.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, listing)
}

// Update godoc
// @Summary Edit a draft listing
// @Tags Listings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Listing ID"
// @Param payload body dto.UpdateListingRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /listings/{id} [patch]
func (h *ListingHandler) Update(c *gin.Context) {
	var req dto.UpdateListingRequest
	if !bindJSON(c, &req) {
		return
	}
	listing, err := h.listings.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, listing)
}

// Publish godoc
// @Summary Publish a draft listing
// @Tags Listings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Listing ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /listings/{id}/publish [post]
func (h *ListingHandler) Publish(c *gin.Context) {
	h.transition(c, h.listings.Publish)
}

// Archive godoc
// @Summary Archive a draft or published listing
// @Tags Listings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Listing ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /listings/{id}/archive [post]
func (h *ListingHandler) Archive(c *gin.Context) {
	h.transition(c, h.listings.Archive)
}

// MarkSold godoc
// @Summary Mark a published listing as sold
// @Description Consumes the listed quantity from the seller's collection when the listing references a card.
// @Tags Listings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Listing ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /listings/{id}/mark-sold [post]
func (h *ListingHandler) MarkSold(c *gin.Context) {
	h.transition(c, h.listings.MarkSold)
}

// Events godoc
// @Summary Listing audit trail
// @Tags Listings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Listing ID"
// @Success 200 {object} response.Envelope
// @Router /listings/{id}/events [get]
func (h *ListingHandler) Events(c *gin.Context) {
	events, err := h.listings.Events(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, events)
}

func (h *ListingHandler) transition(c *gin.Context, apply func(context.Context, string, *models.JWTClaims) (*models.Listing, error)) {
	listing, err := apply(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, listing)
}
