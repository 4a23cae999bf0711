package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/card-market-api/pkg/errors"
	"github.com/noah-isme/card-market-api/pkg/response"
)

type banChecker interface {
	IsBanned(ctx context.Context, userID string) (bool, error)
}

// RejectBanned refuses mutations from banned users. It must run after JWT.
func RejectBanned(users banChecker, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}

		banned, err := users.IsBanned(c.Request.Context(), claims.UserID)
		if err != nil {
			logger.Error("ban lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
			response.Error(c, appErrors.Internal(err, "failed to check account status"))
			return
		}
		if banned {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "account is banned"))
			return
		}

		c.Next()
	}
}
