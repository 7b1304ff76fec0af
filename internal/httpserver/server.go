// Package httpserver is the REST façade over the ledger and inventory
// engines: gin router, JWT tenant auth, webhook intake, and the mapping from
// domain errors to HTTP statuses.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campreserv/core/pkg/inventory"
	"github.com/campreserv/core/pkg/ledger"
)

const shutdownTimeout = 5 * time.Second

// Config carries the server's listen and security settings.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	JWTSigningKey  []byte
	WebhookSecret  []byte
}

// Server exposes the domain services over REST.
type Server struct {
	cfg        Config
	logger     *zap.Logger
	ledger     *ledger.Service
	refunds    *ledger.RefundEngine
	reconciler *ledger.Reconciler
	blocks     *inventory.Manager
	groups     *inventory.Coordinator
}

// New wires a Server. Every dependency is required.
func New(cfg Config, logger *zap.Logger, ledgerService *ledger.Service, refunds *ledger.RefundEngine, reconciler *ledger.Reconciler, blocks *inventory.Manager, groups *inventory.Coordinator) (*Server, error) {
	if logger == nil || ledgerService == nil || refunds == nil || reconciler == nil || blocks == nil || groups == nil {
		return nil, errors.New("httpserver: nil dependency")
	}
	if len(cfg.JWTSigningKey) == 0 {
		return nil, errors.New("httpserver: jwt signing key required")
	}
	if len(cfg.WebhookSecret) == 0 {
		return nil, errors.New("httpserver: webhook secret required")
	}
	return &Server{
		cfg:        cfg,
		logger:     logger,
		ledger:     ledgerService,
		refunds:    refunds,
		reconciler: reconciler,
		blocks:     blocks,
		groups:     groups,
	}, nil
}

// Router builds the gin engine with all routes attached.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(server.cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     server.cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	// Webhook authenticity comes from the HMAC signature, not a JWT.
	router.POST("/payments/webhook", server.handleWebhook)

	authenticated := router.Group("/")
	authenticated.Use(authMiddleware(server.cfg.JWTSigningKey))

	authenticated.POST("/ledger/postings", server.handlePostPosting)
	authenticated.POST("/ledger/adjustments", requireRole(roleFinanceAdmin), server.handlePostAdjustment)
	authenticated.GET("/ledger/entries", server.handleListEntries)
	authenticated.GET("/accounting/reconciliation", server.handleReconciliation)
	authenticated.POST("/payments/refunds", requireRole(roleFinanceAdmin), server.handleRefund)

	authenticated.POST("/blocks", server.handleCreateBlock)
	authenticated.POST("/blocks/:id/release", server.handleReleaseBlock)
	authenticated.GET("/availability", server.handleAvailability)

	authenticated.POST("/groups", server.handleCreateGroup)
	authenticated.GET("/groups/:id", server.handleGetGroup)
	authenticated.POST("/groups/:id/reservations", server.handleLinkReservation)
	authenticated.DELETE("/groups/:id/reservations/:reservationId", server.handleUnlinkReservation)
	authenticated.DELETE("/groups/:id", server.handleDeleteGroup)

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
