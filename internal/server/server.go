package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/worksuite/internal/batchinvoice"
	batchdomain "github.com/smallbiznis/worksuite/internal/batchinvoice/domain"
	"github.com/smallbiznis/worksuite/internal/billingaccount"
	billingaccountdomain "github.com/smallbiznis/worksuite/internal/billingaccount/domain"
	"github.com/smallbiznis/worksuite/internal/booking"
	bookingdomain "github.com/smallbiznis/worksuite/internal/booking/domain"
	"github.com/smallbiznis/worksuite/internal/clock"
	"github.com/smallbiznis/worksuite/internal/config"
	"github.com/smallbiznis/worksuite/internal/contact"
	contactdomain "github.com/smallbiznis/worksuite/internal/contact/domain"
	"github.com/smallbiznis/worksuite/internal/invoice"
	invoicedomain "github.com/smallbiznis/worksuite/internal/invoice/domain"
	"github.com/smallbiznis/worksuite/internal/observability"
	obsmiddleware "github.com/smallbiznis/worksuite/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/worksuite/internal/observability/metrics"
	obstracing "github.com/smallbiznis/worksuite/internal/observability/tracing"
	"github.com/smallbiznis/worksuite/internal/providers"
	"github.com/smallbiznis/worksuite/internal/providers/pdf"
	"github.com/smallbiznis/worksuite/internal/reconciliation"
	"github.com/smallbiznis/worksuite/internal/scheduler"
	"github.com/smallbiznis/worksuite/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	"github.com/smallbiznis/worksuite/internal/webhook"
	webhookdomain "github.com/smallbiznis/worksuite/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	providers.Module,
	billingaccount.Module,
	contact.Module,
	booking.Module,
	subscription.Module,
	invoice.Module,
	reconciliation.Module,
	batchinvoice.Module,
	webhook.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// maxWebhookBody caps provider callbacks. Real payloads are a few hundred bytes.
const maxWebhookBody = 1 << 20

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	gateway       webhookdomain.Gateway
	ledger        invoicedomain.Ledger
	accounts      billingaccountdomain.Service
	contacts      contactdomain.Service
	bookings      bookingdomain.Service
	subscriptions subscriptiondomain.Service
	invoicer      batchdomain.Invoicer
	renderer      pdf.Renderer
	clock         clock.Clock

	scheduler *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Gateway       webhookdomain.Gateway
	Ledger        invoicedomain.Ledger
	Accounts      billingaccountdomain.Service
	Contacts      contactdomain.Service
	Bookings      bookingdomain.Service
	Subscriptions subscriptiondomain.Service
	Invoicer      batchdomain.Invoicer
	Renderer      pdf.Renderer
	Clock         clock.Clock

	Scheduler *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		gateway:       p.Gateway,
		ledger:        p.Ledger,
		accounts:      p.Accounts,
		contacts:      p.Contacts,
		bookings:      p.Bookings,
		subscriptions: p.Subscriptions,
		invoicer:      p.Invoicer,
		renderer:      p.Renderer,
		clock:         p.Clock,
		scheduler:     p.Scheduler,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	hooks := s.engine.Group("/webhooks/billing")

	hooks.POST("/invoice", s.HandleInvoiceWebhook)
	hooks.POST("/payment-completed", s.HandlePaymentCompletedWebhook)
	hooks.POST("/subscription-activated", s.HandleSubscriptionActivatedWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Invoices --------
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.GET("/invoices/:id/pdf", s.RenderInvoicePDF)

	// -------- Billing accounts --------
	api.GET("/billing-accounts", s.ListBillingAccounts)
	api.POST("/billing-accounts", s.CreateBillingAccount)
	api.PATCH("/billing-accounts/:code", s.UpdateBillingAccount)

	// -------- Subscriptions --------
	api.POST("/subscriptions", s.CreateSubscription)
	api.POST("/subscriptions/:id/deactivate", s.DeactivateSubscription)

	// -------- Contacts & bookings --------
	api.POST("/contacts", s.CreateContact)
	api.POST("/bookings", s.CreateBooking)

	api.POST("/billing/runs", s.RunBillingPeriod)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
