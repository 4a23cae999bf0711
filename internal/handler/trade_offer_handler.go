package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/response"
)

type tradeOfferService interface {
	Create(ctx context.Context, req dto.CreateTradeOfferRequest, actor *models.JWTClaims) (*models.TradeOffer, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.TradeOffer, error)
	List(ctx context.Context, query dto.TradeOfferQuery, actor *models.JWTClaims) ([]models.TradeOffer, *models.Pagination, error)
	Accept(ctx context.Context, id string, actor *models.JWTClaims) (*models.TradeOffer, error)
	Reject(ctx context.Context, id string, actor *models.JWTClaims) (*models.TradeOffer, error)
	Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.TradeOffer, error)
	Events(ctx context.Context, id string, actor *models.JWTClaims) ([]models.Event, error)
}

// TradeOfferHandler exposes trade offer endpoints.
type TradeOfferHandler struct {
	offers tradeOfferService
}

// NewTradeOfferHandler constructs TradeOfferHandler.
func NewTradeOfferHandler(offers tradeOfferService) *TradeOfferHandler {
	return &TradeOfferHandler{offers: offers}
}

// List godoc
// @Summary List the caller's trade offers
// @Description Lapsed pending offers are expired before the page is read.
// @Tags TradeOffers
// @Produce json
// @Security BearerAuth
// @Param box query string false "sent, received or all"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /trade-offers [get]
func (h *TradeOfferHandler) List(c *gin.Context) {
	var query dto.TradeOfferQuery
	if !bindQuery(c, &query) {
		return
	}
	offers, pagination, err := h.offers.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, offers, pagination)
}

// Get godoc
// @Summary Get trade offer detail
// @Tags TradeOffers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trade offer ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /trade-offers/{id} [get]
func (h *TradeOfferHandler) Get(c *gin.Context) {
	offer, err := h.offers.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, offer)
}

// Create godoc
// @Summary Propose a trade
// @Tags TradeOffers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateTradeOfferRequest true "Trade offer payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /trade-offers [post]
func (h *TradeOfferHandler) Create(c *gin.Context) {
	var req dto.CreateTradeOfferRequest
	if !bindJSON(c, &req) {
		return
	}
	offer, err := h.offers.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, offer)
}

// Accept godoc
// @Summary Accept a pending offer
// @Tags TradeOffers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trade offer ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /trade-offers/{id}/accept [post]
func (h *TradeOfferHandler) Accept(c *gin.Context) {
	h.respond(c, h.offers.Accept)
}

// Reject godoc
// @Summary Reject a pending offer
// @Tags TradeOffers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trade offer ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /trade-offers/{id}/reject [post]
func (h *TradeOfferHandler) Reject(c *gin.Context) {
	h.respond(c, h.offers.Reject)
}

// Cancel godoc
// @Summary Withdraw a pending offer
// @Tags TradeOffers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trade offer ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /trade-offers/{id}/cancel [post]
func (h *TradeOfferHandler) Cancel(c *gin.Context) {
	h.respond(c, h.offers.Cancel)
}

// Events godoc
// @Summary Trade offer audit trail
// @Tags TradeOffers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trade offer ID"
// @Success 200 {object} response.Envelope
// @Router /trade-offers/{id}/events [get]
func (h *TradeOfferHandler) Events(c *gin.Context) {
	events, err := h.offers.Events(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, events)
}

func (h *TradeOfferHandler) respond(c *gin.Context, apply func(context.Context, string, *models.JWTClaims) (*models.TradeOffer, error)) {
	offer, err := apply(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, offer)
}
