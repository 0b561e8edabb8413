package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/audit"
	"github.com/dreamshop/gateway/internal/auth"
	"github.com/dreamshop/gateway/internal/completion"
	"github.com/dreamshop/gateway/internal/escrow"
	"github.com/dreamshop/gateway/internal/middleware"
	"github.com/dreamshop/gateway/internal/payment/paypal"
	"github.com/dreamshop/gateway/internal/payment/stripepay"
	"github.com/dreamshop/gateway/internal/proxy"
	"github.com/dreamshop/gateway/internal/routes"
	"github.com/dreamshop/gateway/internal/shipping"
)

// PayPal is satisfied by *paypal.Client.
type PayPal interface {
	CreateOrder(ctx context.Context, p paypal.CreateOrderParams) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID, requestID string) (*paypal.Capture, error)
}

type Deps struct {
	Addr     string
	Currency string
	Logger   *zap.Logger
	Verifier *auth.Verifier

	Upstream  proxy.Upstreamer
	Orders    completion.Orders
	Fees      completion.ResinFees
	Stripe    stripepay.Gateway
	PayPal    PayPal
	Escrow    escrow.Store
	Completer *completion.Completer
	Shipping  *shipping.Calculator

	Audit   *audit.AuditWorkerPool
	Limiter *middleware.RateLimiter
}

type Server struct {
	addr      string
	currency  string
	logger    *zap.Logger
	verifier  *auth.Verifier
	engine    *proxy.Engine
	orders    completion.Orders
	fees      completion.ResinFees
	stripe    stripepay.Gateway
	paypal    PayPal
	escrow    escrow.Store
	completer *completion.Completer
	shipping  *shipping.Calculator
	audit     *audit.AuditWorkerPool
	limiter   *middleware.RateLimiter
	now       func() time.Time
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Currency == "" {
		d.Currency = "eur"
	}
	return &Server{
		addr:      d.Addr,
		currency:  d.Currency,
		logger:    d.Logger,
		verifier:  d.Verifier,
		engine:    proxy.NewEngine(d.Upstream, d.Verifier, d.Logger),
		orders:    d.Orders,
		fees:      d.Fees,
		stripe:    d.Stripe,
		paypal:    d.PayPal,
		escrow:    d.Escrow,
		completer: d.Completer,
		shipping:  d.Shipping,
		audit:     d.Audit,
		limiter:   d.Limiter,
		now:       time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.logger, s.audit, http.MethodPost, http.MethodPut, http.MethodDelete))
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.engine.Mount(r, routes.All()...)
	if s.shipping != nil {
		shipping.NewHandler(s.shipping).Routes(r)
	}

	if s.stripe != nil {
		r.Post("/api/stripe/webhook", s.handleStripeWebhook)
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(s.verifier, true))
		if s.stripe != nil {
			r.Post("/api/scheduled-orders/{id}/payment-intent", s.handleScheduledIntent)
			r.Post("/api/scheduled-orders/{id}/complete-payment", s.handleScheduledComplete)
			r.Post("/api/resin-shipping/{token}/payment-intent", s.handleResinIntent)
			r.Post("/api/resin-shipping/{token}/complete-payment", s.handleResinComplete)
			r.Post("/api/checkout/session", s.handleCheckoutSession)
			r.Post("/api/checkout/order-after-payment", s.handleOrderAfterPayment)
			r.Get("/api/orders/{id}/payment-status", s.handlePaymentStatus)
		}
		if s.paypal != nil {
			r.Post("/api/paypal/orders", s.handlePayPalCreate)
			r.Post("/api/paypal/orders/{paypal_id}/capture", s.handlePayPalCapture)
		}
	})
	return r
}

// Run serves until ctx is cancelled and then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
