package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/response"
)

type collectionService interface {
	List(ctx context.Context, query dto.PageQuery, actor *models.JWTClaims) ([]models.CollectionItem, *models.Pagination, error)
	Add(ctx context.Context, req dto.AddCollectionItemRequest, actor *models.JWTClaims) (*models.CollectionItem, error)
}

type notificationService interface {
	List(ctx context.Context, query dto.PageQuery, actor *models.JWTClaims) ([]models.Notification, *models.Pagination, error)
}

// MeHandler exposes the caller's own collection and notifications.
type MeHandler struct {
	collection    collectionService
	notifications notificationService
}

// NewMeHandler constructs MeHandler.
func NewMeHandler(collection collectionService, notifications notificationService) *MeHandler {
	return &MeHandler{collection: collection, notifications: notifications}
}

// Collection godoc
// @Summary List the caller's card collection
// @Tags Me
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /me/collection [get]
func (h *MeHandler) Collection(c *gin.Context) {
	var query dto.PageQuery
	if !bindQuery(c, &query) {
		return
	}
	items, pagination, err := h.collection.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, items, pagination)
}

// AddToCollection godoc
// @Summary Add copies of a card to the caller's collection
// @Tags Me
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.AddCollectionItemRequest true "Collection item"
// @Success 201 {object} response.Envelope
// @Router /me/collection [post]
func (h *MeHandler) AddToCollection(c *gin.Context) {
	var req dto.AddCollectionItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.collection.Add(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Notifications godoc
// @Summary List the caller's notifications
// @Tags Me
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /me/notifications [get]
func (h *MeHandler) Notifications(c *gin.Context) {
	var query dto.PageQuery
	if !bindQuery(c, &query) {
		return
	}
	items, pagination, err := h.notifications.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, items, pagination)
}
