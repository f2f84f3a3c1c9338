package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/library-lending-api/internal/handler"
	"github.com/noah-isme/library-lending-api/internal/middleware"
	"github.com/noah-isme/library-lending-api/internal/models"
	"github.com/noah-isme/library-lending-api/pkg/config"
	"github.com/noah-isme/library-lending-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/library-lending-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/library-lending-api/pkg/middleware/requestid"
)

// NewRouter registers every HTTP route on a fresh gin engine.
func NewRouter(c *Container) *gin.Engine {
	cfg := c.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(c.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(c.Metrics))

	metricsHandler := handler.NewMetricsHandler(c.Metrics, c.DB)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(c.Auth)
	borrowingHandler := handler.NewBorrowingHandler(c.Lending)
	reservationHandler := handler.NewReservationHandler(c.Reservations)
	inventoryHandler := handler.NewInventoryHandler(c.Inventory)
	policyHandler := handler.NewPolicyHandler(c.Policies)
	catalogHandler := handler.NewCatalogHandler(c.Catalog)
	rightsHandler := handler.NewLendingRightsHandler(c.LendingRights)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(c.Auth))

	staff := middleware.Staff()
	staffOrSelf := middleware.RBAC(string(models.RoleAdmin), string(models.RoleLibrarian), middleware.SelfStudent)
	staffOrSelfQuery := middleware.RBAC(string(models.RoleAdmin), string(models.RoleLibrarian), middleware.SelfStudentQuery)
	anyone := middleware.RequireRoles(models.RoleAdmin, models.RoleLibrarian, models.RoleStudent)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(c.Audit, c.Logger, action, resource)
	}

	secured.GET("/auth/me", authHandler.Me)

	secured.GET("/books", anyone, catalogHandler.ListBooks)
	secured.GET("/books/:id", anyone, catalogHandler.GetBook)
	secured.GET("/books/:id/queue", staff, reservationHandler.Queue)
	secured.GET("/books/:id/policy", staffOrSelfQuery, policyHandler.EffectivePolicy)
	secured.GET("/books/:id/lending-rights", staff, rightsHandler.Get)
	secured.PUT("/books/:id/lending-rights", staff, audit(models.AuditActionLendingRightsSet, "book_lending_rights"), rightsHandler.Upsert)
	secured.DELETE("/books/:id/lending-rights", staff, audit(models.AuditActionLendingRightsDrop, "book_lending_rights"), rightsHandler.Delete)
	secured.GET("/categories", anyone, catalogHandler.ListCategories)
	secured.GET("/students/:id", staffOrSelf, catalogHandler.GetStudent)
	secured.GET("/students/:id/limit-status", staffOrSelf, policyHandler.LimitStatus)

	secured.POST("/inventory/adjust", staff, audit(models.AuditActionCopiesAdjust, "books"), inventoryHandler.Adjust)

	secured.GET("/borrowings", anyone, borrowingHandler.List)
	secured.GET("/borrowings/export", staff, borrowingHandler.Export)
	secured.GET("/borrowings/:id", anyone, borrowingHandler.Get)
	secured.POST("/borrowings", staff, audit(models.AuditActionBorrowingCreate, "borrowings"), borrowingHandler.Create)
	secured.POST("/borrowings/:id/return", staff, audit(models.AuditActionBorrowingReturn, "borrowings"), borrowingHandler.Return)
	secured.POST("/borrowings/:id/renew", staff, audit(models.AuditActionBorrowingRenew, "borrowings"), borrowingHandler.Renew)

	secured.GET("/reservations", anyone, reservationHandler.List)
	secured.POST("/reservations", anyone, reservationHandler.Create)
	secured.GET("/reservations/:id", anyone, reservationHandler.Get)
	secured.GET("/reservations/:id/events", staff, reservationHandler.Events)
	secured.POST("/reservations/:id/checkout", staff, reservationHandler.Checkout)
	secured.POST("/reservations/:id/cancel", anyone, reservationHandler.Cancel)
	secured.POST("/reservations/:id/extend", staff, reservationHandler.Extend)
	secured.DELETE("/reservations/:id", staff, reservationHandler.Delete)

	return r
}
