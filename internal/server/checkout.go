package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/apierr"
	"github.com/dreamshop/gateway/internal/completion"
	"github.com/dreamshop/gateway/internal/payment/stripepay"
	"github.com/dreamshop/gateway/internal/proxy"
)

var checkoutSessionSchema = proxy.MustSchema(`{
	"type": "object",
	"required": ["order_data", "line_items", "success_url", "cancel_url"],
	"properties": {
		"order_data": {"type": "object"},
		"line_items": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "unit_amount", "quantity"],
				"properties": {
					"name":        {"type": "string", "minLength": 1},
					"unit_amount": {"type": ["number", "string"]},
					"quantity":    {"type": "integer", "minimum": 1}
				}
			}
		},
		"payment_method_types": {"type": "array", "items": {"type": "string"}},
		"success_url":    {"type": "string", "minLength": 1},
		"cancel_url":     {"type": "string", "minLength": 1},
		"customer_email": {"type": "string"}
	}
}`)

type checkoutLineItem struct {
	Name       string          `json:"name"`
	UnitAmount decimal.Decimal `json:"unit_amount"`
	Quantity   int64           `json:"quantity"`
}

type checkoutSessionRequest struct {
	OrderData          json.RawMessage    `json:"order_data"`
	LineItems          []checkoutLineItem `json:"line_items"`
	PaymentMethodTypes []string           `json:"payment_method_types"`
	SuccessURL         string             `json:"success_url"`
	CancelURL          string             `json:"cancel_url"`
	CustomerEmail      string             `json:"customer_email"`
}

func (s *Server) handleCheckoutSession(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if err := checkoutSessionSchema.Validate(raw); err != nil {
		apierr.Write(w, err)
		return
	}
	var req checkoutSessionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		apierr.Write(w, apierr.BadRequest("invalid JSON body"))
		return
	}
	items := make([]stripepay.LineItem, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		if li.UnitAmount.IsNegative() {
			apierr.Write(w, apierr.BadRequest("unit_amount must not be negative"))
			return
		}
		items = append(items, stripepay.LineItem{Name: li.Name, UnitAmount: li.UnitAmount, Quantity: li.Quantity})
	}

	uid := userID(r)
	dataID, err := s.escrow.Put(r.Context(), req.OrderData)
	if err != nil {
		s.logger.Error("escrow order data", zap.Int64("user_id", uid), zap.Error(err))
		apierr.Write(w, err)
		return
	}

	cs, err := s.stripe.CreateCheckoutSession(r.Context(), stripepay.SessionParams{
		LineItems:          items,
		Currency:           s.currency,
		CustomerEmail:      req.CustomerEmail,
		PaymentMethodTypes: req.PaymentMethodTypes,
		SuccessURL:         req.SuccessURL,
		CancelURL:          req.CancelURL,
		Metadata: map[string]string{
			stripepay.MetaKind:        stripepay.KindCheckout,
			stripepay.MetaOrderDataID: dataID,
			stripepay.MetaUserID:      strconv.FormatInt(uid, 10),
		},
		IdempotencyKey: stripepay.IdempotencyKey("checkout", dataID, uid, s.now()),
	})
	if err != nil {
		s.logger.Error("create checkout session", zap.String("order_data_id", dataID), zap.Error(err))
		if delErr := s.escrow.Delete(r.Context(), dataID); delErr != nil {
			s.logger.Warn("drop unused escrow record", zap.String("order_data_id", dataID), zap.Error(delErr))
		}
		apierr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id":    cs.ID,
		"url":           cs.URL,
		"order_data_id": dataID,
	})
}

func (s *Server) handleOrderAfterPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		apierr.Write(w, err)
		return
	}
	if req.SessionID == "" {
		apierr.Write(w, apierr.BadRequest("session_id is required"))
		return
	}
	res, err := s.completer.OrderAfterPayment(r.Context(), req.SessionID, userID(r), completion.SourceClient)
	writeResult(w, res, err)
}
