package router

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/card-market-api/api/swagger"
	"github.com/noah-isme/card-market-api/internal/handler"
	"github.com/noah-isme/card-market-api/internal/middleware"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/internal/service"
	"github.com/noah-isme/card-market-api/pkg/config"
	"github.com/noah-isme/card-market-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/card-market-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/card-market-api/pkg/middleware/requestid"
)

// TokenValidator turns a bearer token into claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// BanChecker reports whether a user may no longer mutate anything.
type BanChecker interface {
	IsBanned(ctx context.Context, userID string) (bool, error)
}

// Dependencies holds everything the HTTP layer is built from.
type Dependencies struct {
	Auth    TokenValidator
	Users   BanChecker
	Metrics *service.MetricsService
	Logger  *zap.Logger

	Listings    *handler.ListingHandler
	TradeOffers *handler.TradeOfferHandler
	Handovers   *handler.HandoverHandler
	Reports     *handler.ReportHandler
	Me          *handler.MeHandler
	Probes      *handler.MetricsHandler
}

// New builds the gin engine with the global middleware chain and every route.
func New(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", deps.Probes.Health)
	r.GET("/ready", deps.Probes.Ready)
	r.GET("/metrics", deps.Probes.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	public := api.Group("")
	public.Use(middleware.OptionalJWT(deps.Auth))
	{
		public.GET("/listings", deps.Listings.List)
		public.GET("/listings/:id", deps.Listings.Get)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.Auth))
	{
		authed.GET("/listings/:id/events", deps.Listings.Events)
		authed.GET("/me/listings", deps.Listings.Mine)
		authed.GET("/me/collection", deps.Me.Collection)
		authed.GET("/me/notifications", deps.Me.Notifications)
		authed.GET("/trade-offers", deps.TradeOffers.List)
		authed.GET("/trade-offers/:id", deps.TradeOffers.Get)
		authed.GET("/trade-offers/:id/events", deps.TradeOffers.Events)
		authed.GET("/handovers/:id", deps.Handovers.Get)
	}

	mutating := api.Group("")
	mutating.Use(middleware.JWT(deps.Auth), middleware.RejectBanned(deps.Users, deps.Logger))
	{
		mutating.POST("/listings", deps.Listings.Create)
		mutating.PATCH("/listings/:id", deps.Listings.Update)
		mutating.POST("/listings/:id/publish", deps.Listings.Publish)
		mutating.POST("/listings/:id/archive", deps.Listings.Archive)
		mutating.POST("/listings/:id/mark-sold", deps.Listings.MarkSold)
		mutating.POST("/listings/:id/reports", deps.Reports.Create)
		mutating.POST("/me/collection", deps.Me.AddToCollection)
		mutating.POST("/trade-offers", deps.TradeOffers.Create)
		mutating.POST("/trade-offers/:id/accept", deps.TradeOffers.Accept)
		mutating.POST("/trade-offers/:id/reject", deps.TradeOffers.Reject)
		mutating.POST("/trade-offers/:id/cancel", deps.TradeOffers.Cancel)
		mutating.POST("/handovers", deps.Handovers.Create)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.JWT(deps.Auth), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/handovers", deps.Handovers.List)
		admin.POST("/handovers/:id/verify", deps.Handovers.Verify)
		admin.POST("/handovers/:id/reject", deps.Handovers.Reject)
		admin.GET("/reports", deps.Reports.List)
		admin.POST("/reports/:id/resolve", deps.Reports.Resolve)
		admin.POST("/reports/:id/reject", deps.Reports.Reject)
	}

	return r
}
