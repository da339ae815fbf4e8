// Package api exposes the portal over HTTP/JSON.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payportal/internal/approval"
	"payportal/internal/audit"
	"payportal/internal/auth"
	"payportal/internal/ledger"
	"payportal/internal/logging"
	"payportal/internal/metrics"
	"payportal/internal/records"
	"payportal/internal/throttle"
	"payportal/models"
)

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the routes. Limiter, Audit, Metrics,
// Gatherer and AllowedOrigins are optional.
type Deps struct {
	Ledger    *ledger.Ledger
	Records   *records.Service
	Approvals *approval.Engine
	Tokens    *auth.Tokens
	Storage   Pinger
	Limiter   throttle.Limiter
	Audit     audit.Trail
	Metrics   metrics.Collector
	Gatherer  prometheus.Gatherer
	Logger    *logging.Logger

	// AllowedOrigins enables CORS for these browser origins.
	AllowedOrigins []string
}

// Server is the portal's HTTP front end.
type Server struct {
	Deps
	router *gin.Engine
}

// NewServer builds the router.
func NewServer(d Deps) *Server {
	if d.Limiter == nil {
		d.Limiter = throttle.Noop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NoOpCollector{}
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	d.Logger = d.Logger.Named("http")

	router := gin.New()
	s := &Server{Deps: d, router: router}

	router.Use(s.requestID(), s.accessLog(), s.recovery(), securityHeaders())
	if len(d.AllowedOrigins) > 0 {
		router.Use(corsPolicy(d.AllowedOrigins))
	}
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", s.handleRegister)
		authRoutes.POST("/login", s.handleLogin)
	}

	authed := api.Group("", auth.Authenticate(d.Tokens))
	submit := auth.Require(auth.PermSubmitTransfer)
	view := auth.Require(auth.PermViewOwnAccount)
	review := auth.Require(auth.PermReviewTransfers)

	payments := authed.Group("/payments")
	{
		payments.POST("", submit, s.handleCreatePayment)
		payments.GET("/history", view, s.handleHistory(models.KindPayment))
		payments.GET("/statement", view, s.handleStatement(models.KindPayment))
	}

	transactions := authed.Group("/transactions")
	{
		transactions.POST("/create", submit, s.handleCreateTransaction)
		transactions.GET("/history", view, s.handleHistory(models.KindTransaction))
		transactions.GET("/statement", view, s.handleStatement(models.KindTransaction))
		transactions.GET("/pending", review, s.handlePending(models.KindTransaction))
		transactions.POST("/:id/approve", review, s.handleApprove(models.KindTransaction))
		transactions.POST("/:id/reject", review, s.handleReject(models.KindTransaction))
	}

	admin := authed.Group("/admin")
	{
		admin.GET("/payments", review, s.handlePending(models.KindPayment))
		admin.POST("/payments/:id/approve", review, s.handleApprove(models.KindPayment))
		admin.POST("/payments/:id/reject", review, s.handleReject(models.KindPayment))
		admin.POST("/add-admin", auth.Require(auth.PermManageAdmins), s.handleAddAdmin)
		admin.GET("/audit/:kind/:id", review, s.handleAudit)
	}

	user := authed.Group("/user", view)
	{
		user.GET("/balance", s.handleBalance)
		user.GET("/profile", s.handleProfile)
	}

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}
