package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/apierr"
	"github.com/dreamshop/gateway/internal/completion"
	"github.com/dreamshop/gateway/internal/models"
	"github.com/dreamshop/gateway/internal/payment/paypal"
	"github.com/dreamshop/gateway/internal/payment/stripepay"
)

type paypalOrderRequest struct {
	OrderID int64 `json:"order_id"`
}

func (s *Server) handlePayPalCreate(w http.ResponseWriter, r *http.Request) {
	var req paypalOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, err)
		return
	}
	if req.OrderID <= 0 {
		apierr.Write(w, apierr.BadRequest("order_id is required"))
		return
	}
	uid := userID(r)
	order, err := s.loadOwnedOrder(r, req.OrderID, uid)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if !order.Status.Payable() {
		apierr.Write(w, completion.ErrNotPayable)
		return
	}
	amount, err := order.TotalAmount()
	if err != nil || !amount.IsPositive() {
		apierr.Write(w, apierr.BadRequest("order has no amount to pay"))
		return
	}

	orderRef := strconv.FormatInt(req.OrderID, 10)
	ppOrder, err := s.paypal.CreateOrder(r.Context(), paypal.CreateOrderParams{
		ReferenceID: orderRef,
		CustomID:    strconv.FormatInt(uid, 10),
		Amount:      amount,
		Currency:    s.currencyOf(order.Currency),
		RequestID:   stripepay.IdempotencyKey("paypal_order", orderRef, uid, s.now()),
	})
	if err != nil {
		s.logger.Error("create paypal order", zap.Int64("order_id", req.OrderID), zap.Error(err))
		apierr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":          ppOrder.ID,
		"status":      ppOrder.Status,
		"approve_url": ppOrder.ApproveURL,
	})
}

func (s *Server) handlePayPalCapture(w http.ResponseWriter, r *http.Request) {
	paypalID := chi.URLParam(r, "paypal_id")
	var req paypalOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, err)
		return
	}
	if req.OrderID <= 0 {
		apierr.Write(w, apierr.BadRequest("order_id is required"))
		return
	}
	// funds must not move for an order the caller cannot complete
	uid := userID(r)
	order, err := s.loadOwnedOrder(r, req.OrderID, uid)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if !order.Status.Payable() && !order.HasMeta(models.MetaPaymentCompleted, models.MetaYes) {
		apierr.Write(w, completion.ErrNotPayable)
		return
	}
	// a fixed request id makes a retried capture return the first result
	capture, err := s.paypal.CaptureOrder(r.Context(), paypalID, "capture_"+paypalID)
	if err != nil {
		s.logger.Error("capture paypal order", zap.String("paypal_id", paypalID), zap.Error(err))
		apierr.Write(w, err)
		return
	}
	res, err := s.completer.CompleteOrder(r.Context(), completion.Request{
		OrderID:      req.OrderID,
		UserID:       uid,
		Confirmation: completion.FromPayPalCapture(capture),
		Source:       completion.SourceClient,
	})
	writeResult(w, res, err)
}
