package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/card-market-api/internal/models"
	appErrors "github.com/noah-isme/card-market-api/pkg/errors"
)

// Envelope is the body of every API response: data on success, error on
// failure, and pagination for list endpoints.
type Envelope struct {
	Data       interface{}        `json:"data,omitempty"`
	Error      *appErrors.Error   `json:"error,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
}

// Listing and offer states change under the caller; nothing is cacheable
// downstream.
func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// OK responds 200 with data.
func OK(c *gin.Context, data interface{}) {
	noStore(c)
	c.JSON(http.StatusOK, Envelope{Data: data})
}

// Page responds 200 with one page of items.
func Page(c *gin.Context, items interface{}, pagination *models.Pagination) {
	noStore(c)
	c.JSON(http.StatusOK, Envelope{Data: items, Pagination: pagination})
}

// Created responds 201 with the new entity.
func Created(c *gin.Context, data interface{}) {
	noStore(c)
	c.JSON(http.StatusCreated, Envelope{Data: data})
}

// Error converts err into the error envelope and aborts the chain. Errors
// without a domain code surface as INTERNAL_ERROR.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.AbortWithStatusJSON(appErr.Status, Envelope{Error: appErr})
}
