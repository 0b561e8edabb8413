package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/apierr"
	"github.com/dreamshop/gateway/internal/completion"
	"github.com/dreamshop/gateway/internal/models"
	"github.com/dreamshop/gateway/internal/payment/stripepay"
)

type intentResponse struct {
	ClientSecret    string          `json:"client_secret"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
}

type completeRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

func (s *Server) currencyOf(c string) string {
	if c == "" {
		return s.currency
	}
	return strings.ToLower(c)
}

func (s *Server) handleScheduledIntent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		apierr.Write(w, err)
		return
	}
	uid := userID(r)
	order, err := s.loadOwnedOrder(r, id, uid)
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

	orderRef := strconv.FormatInt(id, 10)
	pi, err := s.stripe.CreatePaymentIntent(r.Context(), stripepay.IntentParams{
		Amount:      amount,
		Currency:    s.currencyOf(order.Currency),
		Description: "Order #" + order.Number,
		Metadata: map[string]string{
			stripepay.MetaKind:    stripepay.KindScheduledOrder,
			stripepay.MetaOrderID: orderRef,
			stripepay.MetaUserID:  strconv.FormatInt(uid, 10),
		},
		IdempotencyKey: stripepay.IdempotencyKey("scheduled_order", orderRef, uid, s.now()),
	})
	if err != nil {
		s.logger.Error("create payment intent", zap.Int64("order_id", id), zap.Error(err))
		apierr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intentResponse{ClientSecret: pi.ClientSecret, PaymentIntentID: pi.ID, Amount: amount})
}

func (s *Server) handleScheduledComplete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		apierr.Write(w, err)
		return
	}
	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, err)
		return
	}
	if req.PaymentIntentID == "" {
		apierr.Write(w, apierr.BadRequest("payment_intent_id is required"))
		return
	}
	pi, err := s.stripe.GetPaymentIntent(r.Context(), req.PaymentIntentID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if pi.Metadata[stripepay.MetaKind] != stripepay.KindScheduledOrder {
		apierr.Write(w, completion.ErrOwnershipMismatch)
		return
	}
	res, err := s.completer.CompleteOrder(r.Context(), completion.Request{
		OrderID:      id,
		UserID:       userID(r),
		Confirmation: completion.FromPaymentIntent(pi),
		Source:       completion.SourceClient,
	})
	writeResult(w, res, err)
}

func (s *Server) loadOwnedOrder(r *http.Request, orderID, uid int64) (*models.Order, error) {
	order, err := s.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != uid {
		return nil, completion.ErrOwnershipMismatch
	}
	return order, nil
}

func (s *Server) loadOwnedFee(r *http.Request) (*models.ResinShippingFee, error) {
	token := chi.URLParam(r, "token")
	if !models.ValidResinToken(token) {
		return nil, apierr.BadRequest("invalid token")
	}
	fee, err := s.fees.GetResinShippingFee(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if fee.CustomerID != userID(r) {
		return nil, completion.ErrOwnershipMismatch
	}
	return fee, nil
}

func (s *Server) handleResinIntent(w http.ResponseWriter, r *http.Request) {
	fee, err := s.loadOwnedFee(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if fee.PaymentStatus == models.FeeStatusPaid {
		apierr.Write(w, completion.ErrFeeAlreadyPaid)
		return
	}
	if !fee.Amount.IsPositive() {
		apierr.Write(w, apierr.BadRequest("shipping fee has no amount to pay"))
		return
	}

	uid := userID(r)
	pi, err := s.stripe.CreatePaymentIntent(r.Context(), stripepay.IntentParams{
		Amount:      fee.Amount,
		Currency:    s.currencyOf(fee.Currency),
		Description: "Resin shipping for order #" + strconv.FormatInt(fee.OrderID, 10),
		Metadata: map[string]string{
			stripepay.MetaKind:     stripepay.KindResinShipping,
			stripepay.MetaFeeToken: fee.Token,
			stripepay.MetaOrderID:  strconv.FormatInt(fee.OrderID, 10),
			stripepay.MetaUserID:   strconv.FormatInt(uid, 10),
		},
		IdempotencyKey: stripepay.IdempotencyKey("resin_shipping", fee.Token[:16], uid, s.now()),
	})
	if err != nil {
		s.logger.Error("create resin payment intent", zap.Int64("order_id", fee.OrderID), zap.Error(err))
		apierr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intentResponse{ClientSecret: pi.ClientSecret, PaymentIntentID: pi.ID, Amount: fee.Amount})
}

func (s *Server) handleResinComplete(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !models.ValidResinToken(token) {
		apierr.Write(w, apierr.BadRequest("invalid token"))
		return
	}
	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, err)
		return
	}
	if req.PaymentIntentID == "" {
		apierr.Write(w, apierr.BadRequest("payment_intent_id is required"))
		return
	}
	pi, err := s.stripe.GetPaymentIntent(r.Context(), req.PaymentIntentID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if pi.Metadata[stripepay.MetaKind] != stripepay.KindResinShipping {
		apierr.Write(w, completion.ErrOwnershipMismatch)
		return
	}
	res, err := s.completer.CompleteResinFee(r.Context(), token, userID(r), completion.FromPaymentIntent(pi), completion.SourceClient)
	writeResult(w, res, err)
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		apierr.Write(w, err)
		return
	}
	state, err := s.completer.PaymentStatus(r.Context(), id, userID(r), r.URL.Query().Get("payment_intent_id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, state)
	case errors.Is(err, completion.ErrInProgress):
		writeJSON(w, http.StatusAccepted, state)
	default:
		apierr.Write(w, err)
	}
}

// handleStripeWebhook answers 400 on a bad signature and 500 when the
// event should be redelivered.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	ev, err := s.stripe.ConstructEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.logger.Warn("rejected stripe webhook", zap.Error(err))
		apierr.Write(w, apierr.BadRequest("invalid signature"))
		return
	}
	if err := s.completer.HandleStripeEvent(r.Context(), ev); err != nil {
		s.logger.Error("stripe webhook processing failed",
			zap.String("event_id", ev.ID), zap.String("type", ev.Type), zap.Error(err))
		apierr.Write(w, apierr.Wrap(http.StatusInternalServerError, "webhook processing failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
