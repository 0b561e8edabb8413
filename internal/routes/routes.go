// Package routes is the catalogue of storefront endpoints served by the
// generic proxy.
package routes

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dreamshop/gateway/internal/apierr"
	"github.com/dreamshop/gateway/internal/models"
	"github.com/dreamshop/gateway/internal/proxy"
	"github.com/dreamshop/gateway/internal/wordpress"
)

const DefaultCurrency = "EUR"

var (
	pointsRedeemSchema = proxy.MustSchema(`{
		"type": "object",
		"required": ["points", "order_id"],
		"properties": {
			"points":   {"type": ["integer", "string"]},
			"order_id": {"type": ["integer", "string"]}
		}
	}`)
	giftCardRedeemSchema = proxy.MustSchema(`{
		"type": "object",
		"required": ["code"],
		"properties": {"code": {"type": "string", "minLength": 1, "maxLength": 64}}
	}`)
	giftCardCouponSchema = proxy.MustSchema(`{
		"type": "object",
		"required": ["amount"],
		"properties": {"amount": {"type": ["number", "string"]}}
	}`)
	couponValidateSchema = proxy.MustSchema(`{
		"type": "object",
		"required": ["code"],
		"properties": {"code": {"type": "string", "minLength": 1, "maxLength": 64}}
	}`)
)

// All returns every catalogue route.
func All() []proxy.Route {
	return []proxy.Route{
		{
			Name: "orders.list", Method: http.MethodGet, Pattern: "/api/orders", Auth: proxy.AuthRequired,
			Upstream: proxy.Upstream{
				Path:        wordpress.WooCommercePath + "/orders",
				Auth:        wordpress.AuthQuery,
				Query:       []string{"page", "per_page", "status"},
				StaticQuery: url.Values{"customer": {"{user_id}"}},
			},
			Response: orderSummaries,
		},
		{
			Name: "orders.get", Method: http.MethodGet, Pattern: "/api/orders/{id}", Auth: proxy.AuthRequired,
			Upstream: proxy.Upstream{Path: wordpress.WooCommercePath + "/orders/{id}", Auth: wordpress.AuthQuery},
			Request:  numericParam("id"),
			Response: ownedOrder,
		},
		{
			Name: "scheduled.list", Method: http.MethodGet, Pattern: "/api/scheduled-orders", Auth: proxy.AuthRequired,
			Upstream: proxy.Upstream{
				Path: wordpress.WooCommercePath + "/orders",
				Auth: wordpress.AuthQuery,
				StaticQuery: url.Values{
					"customer": {"{user_id}"},
					"status":   {string(models.OrderStatusScheduledPayment) + "," + string(models.OrderStatusPendingDeposit)},
					"per_page": {"50"},
				},
			},
			Response: scheduledOrders,
		},
		{
			Name: "points.get", Method: http.MethodGet, Pattern: "/api/points", Auth: proxy.AuthRequired,
			Upstream:           proxy.Upstream{Path: wordpress.DreamShopPath + "/points/{user_id}", Auth: wordpress.AuthBasic},
			FallbackOnNotFound: func(*proxy.Call) interface{} { return map[string]int{"points": 0} },
		},
		{
			Name: "points.redeem", Method: http.MethodPost, Pattern: "/api/points/redeem", Auth: proxy.AuthRequired,
			Schema:   pointsRedeemSchema,
			Upstream: proxy.Upstream{Path: wordpress.DreamShopPath + "/points/redeem", Auth: wordpress.AuthBasic},
			Request:  pointsRedeemRequest,
			Response: pointsRedeemResponse,
		},
		{
			Name: "giftcard.balance", Method: http.MethodGet, Pattern: "/api/gift-cards/balance", Auth: proxy.AuthRequired,
			Upstream: proxy.Upstream{Path: wordpress.GiftCardPath + "/balance/{user_id}", Auth: wordpress.AuthBasic},
			Response: giftCardBalance,
			FallbackOnNotFound: func(*proxy.Call) interface{} {
				return models.GiftCardBalance{Balance: decimal.Zero, Currency: DefaultCurrency}
			},
		},
		{
			Name: "giftcard.transactions", Method: http.MethodGet, Pattern: "/api/gift-cards/transactions", Auth: proxy.AuthRequired,
			Upstream:           proxy.Upstream{Path: wordpress.GiftCardPath + "/transactions/{user_id}", Auth: wordpress.AuthBasic},
			FallbackOnNotFound: func(*proxy.Call) interface{} { return []models.GiftCardTransaction{} },
		},
		{
			Name: "giftcard.redeem", Method: http.MethodPost, Pattern: "/api/gift-cards/redeem", Auth: proxy.AuthRequired,
			Schema:   giftCardRedeemSchema,
			Upstream: proxy.Upstream{Path: wordpress.GiftCardPath + "/redeem", Auth: wordpress.AuthBasic},
			Request: func(c *proxy.Call) (interface{}, error) {
				return map[string]interface{}{"code": c.String("code"), "user_id": c.UserID()}, nil
			},
		},
		{
			Name: "giftcard.coupon", Method: http.MethodPost, Pattern: "/api/gift-cards/coupon", Auth: proxy.AuthRequired,
			Schema:   giftCardCouponSchema,
			Upstream: proxy.Upstream{Path: wordpress.GiftCardPath + "/coupon", Auth: wordpress.AuthBasic},
			Request:  giftCardCouponRequest,
		},
		{
			Name: "resin.list", Method: http.MethodGet, Pattern: "/api/resin-shipping", Auth: proxy.AuthRequired,
			Upstream: proxy.Upstream{Path: wordpress.ResinShippingPath + "/customer/{user_id}", Auth: wordpress.AuthBasic},
			FallbackOnNotFound: func(*proxy.Call) interface{} {
				return map[string]interface{}{"fees": []models.ResinShippingFee{}}
			},
		},
		{
			Name: "resin.get", Method: http.MethodGet, Pattern: "/api/resin-shipping/{token}", Auth: proxy.AuthRequired,
			Upstream: proxy.Upstream{Path: wordpress.ResinShippingPath + "/fee/{token}", Auth: wordpress.AuthBasic},
			Request:  resinToken,
			Response: ownedResinFee,
		},
		{
			Name: "coupons.validate", Method: http.MethodPost, Pattern: "/api/coupons/validate", Auth: proxy.AuthOptional,
			Schema:   couponValidateSchema,
			Upstream: proxy.Upstream{Method: http.MethodGet, Path: wordpress.WooCommercePath + "/coupons", Auth: wordpress.AuthQuery},
			Request: func(c *proxy.Call) (interface{}, error) {
				c.Query.Set("code", c.String("code"))
				return nil, nil
			},
			Response: validateCoupon,
		},
	}
}

func numericParam(name string) func(*proxy.Call) (interface{}, error) {
	return func(c *proxy.Call) (interface{}, error) {
		if n, err := strconv.ParseInt(c.Param(name), 10, 64); err != nil || n <= 0 {
			return nil, apierr.BadRequest("invalid " + name)
		}
		return nil, nil
	}
}

type OrderSummary struct {
	ID                 int64              `json:"id"`
	Number             string             `json:"number"`
	Status             models.OrderStatus `json:"status"`
	Total              string             `json:"total"`
	Currency           string             `json:"currency"`
	DateCreated        string             `json:"date_created"`
	PaymentMethodTitle string             `json:"payment_method_title"`
	ItemCount          int                `json:"item_count"`
}

func orderSummaries(_ *proxy.Call, resp *wordpress.Response) (interface{}, int, error) {
	var orders []models.Order
	if err := resp.Decode(&orders); err != nil {
		return nil, 0, err
	}
	out := make([]OrderSummary, 0, len(orders))
	for _, o := range orders {
		items := 0
		for _, li := range o.LineItems {
			items += li.Quantity
		}
		out = append(out, OrderSummary{
			ID:                 o.ID,
			Number:             o.Number,
			Status:             o.Status,
			Total:              o.Total,
			Currency:           o.Currency,
			DateCreated:        o.DateCreated,
			PaymentMethodTitle: o.PaymentMethodTitle,
			ItemCount:          items,
		})
	}
	return out, http.StatusOK, nil
}

func ownedOrder(c *proxy.Call, resp *wordpress.Response) (interface{}, int, error) {
	var o models.Order
	if err := resp.Decode(&o); err != nil {
		return nil, 0, err
	}
	if o.CustomerID != c.UserID() {
		return nil, 0, apierr.Forbidden("order belongs to another customer")
	}
	return o, http.StatusOK, nil
}

func scheduledOrders(_ *proxy.Call, resp *wordpress.Response) (interface{}, int, error) {
	var orders []models.Order
	if err := resp.Decode(&orders); err != nil {
		return nil, 0, err
	}
	out := make([]models.ScheduledOrder, 0, len(orders))
	for i := range orders {
		out = append(out, models.NewScheduledOrder(&orders[i]))
	}
	return out, http.StatusOK, nil
}

func positiveInt(c *proxy.Call, field string) (int64, error) {
	n, ok := c.Int(field)
	if !ok || n <= 0 {
		return 0, apierr.BadRequest(field + " must be a positive integer")
	}
	return n, nil
}

func pointsRedeemRequest(c *proxy.Call) (interface{}, error) {
	points, err := positiveInt(c, "points")
	if err != nil {
		return nil, err
	}
	orderID, err := positiveInt(c, "order_id")
	if err != nil {
		return nil, err
	}
	return map[string]int64{"user_id": c.UserID(), "points": points, "order_id": orderID}, nil
}

func pointsRedeemResponse(c *proxy.Call, _ *wordpress.Response) (interface{}, int, error) {
	points, _ := c.Int("points")
	orderID, _ := c.Int("order_id")
	return map[string]interface{}{
		"success":         true,
		"points_redeemed": points,
		"order_id":        orderID,
	}, http.StatusOK, nil
}

func giftCardBalance(_ *proxy.Call, resp *wordpress.Response) (interface{}, int, error) {
	var b models.GiftCardBalance
	if err := resp.Decode(&b); err != nil {
		return nil, 0, err
	}
	if b.Currency == "" {
		b.Currency = DefaultCurrency
	}
	return b, http.StatusOK, nil
}

func giftCardCouponRequest(c *proxy.Call) (interface{}, error) {
	var amount decimal.Decimal
	var err error
	switch v := c.Body["amount"].(type) {
	case float64:
		amount = decimal.NewFromFloat(v)
	case string:
		amount, err = decimal.NewFromString(v)
	}
	if err != nil || !amount.IsPositive() {
		return nil, apierr.BadRequest("amount must be greater than zero")
	}
	return map[string]interface{}{"user_id": c.UserID(), "amount": amount.StringFixed(2)}, nil
}

func resinToken(c *proxy.Call) (interface{}, error) {
	if !models.ValidResinToken(c.Param("token")) {
		return nil, apierr.BadRequest("invalid token")
	}
	return nil, nil
}

func ownedResinFee(c *proxy.Call, resp *wordpress.Response) (interface{}, int, error) {
	var fee models.ResinShippingFee
	if err := resp.Decode(&fee); err != nil {
		return nil, 0, err
	}
	if fee.CustomerID != c.UserID() {
		return nil, 0, apierr.Forbidden("shipping fee belongs to another customer")
	}
	fee.Token = c.Param("token")
	return fee, http.StatusOK, nil
}

type coupon struct {
	ID                 int64    `json:"id"`
	Code               string   `json:"code"`
	Amount             string   `json:"amount"`
	DiscountType       string   `json:"discount_type"`
	Description        string   `json:"description"`
	DateExpiresGMT     string   `json:"date_expires_gmt"`
	UsageCount         int      `json:"usage_count"`
	UsageLimit         *int     `json:"usage_limit"`
	MinimumAmount      string   `json:"minimum_amount"`
	FreeShipping       bool     `json:"free_shipping"`
	EmailRestrictions  []string `json:"email_restrictions"`
	IndividualUse      bool     `json:"individual_use"`
	ProductIDs         []int64  `json:"product_ids"`
	ExcludedProductIDs []int64  `json:"excluded_product_ids"`
}

func validateCoupon(c *proxy.Call, resp *wordpress.Response) (interface{}, int, error) {
	var coupons []coupon
	if err := resp.Decode(&coupons); err != nil {
		return nil, 0, err
	}
	if len(coupons) == 0 {
		return nil, 0, apierr.NotFound("coupon not found")
	}
	cp := coupons[0]
	if cp.DateExpiresGMT != "" {
		if exp, err := time.Parse("2006-01-02T15:04:05", cp.DateExpiresGMT); err == nil && time.Now().UTC().After(exp) {
			return nil, 0, apierr.BadRequest("coupon expired")
		}
	}
	if cp.UsageLimit != nil && *cp.UsageLimit > 0 && cp.UsageCount >= *cp.UsageLimit {
		return nil, 0, apierr.BadRequest("coupon usage limit reached")
	}
	if len(cp.EmailRestrictions) > 0 && c.Claims != nil && c.Claims.Email != "" && !emailAllowed(cp.EmailRestrictions, c.Claims.Email) {
		return nil, 0, apierr.BadRequest("coupon not valid for this account")
	}
	return map[string]interface{}{"valid": true, "coupon": cp}, http.StatusOK, nil
}
