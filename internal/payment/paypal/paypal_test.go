package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/apierr"
)

func newTestServer(t *testing.T, api http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "cid", user)
		assert.Equal(t, "csecret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"A21","token_type":"Bearer","expires_in":32400}`))
	})
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer A21", r.Header.Get("Authorization"))
		api(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{ClientID: "cid", ClientSecret: "csecret", BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	return c, &tokenCalls
}

func TestCreateOrder(t *testing.T) {
	c, tokenCalls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/orders", r.URL.Path)
		var body struct {
			Intent        string         `json:"intent"`
			PurchaseUnits []purchaseUnit `json:"purchase_units"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body.Intent)
		if assert.Len(t, body.PurchaseUnits, 1) {
			assert.Equal(t, "42", body.PurchaseUnits[0].ReferenceID)
			assert.Equal(t, "EUR", body.PurchaseUnits[0].Amount.CurrencyCode)
			assert.Equal(t, "89.90", body.PurchaseUnits[0].Amount.Value)
		}
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"CREATED","links":[
			{"href":"https://api/self","rel":"self"},
			{"href":"https://www.sandbox.paypal.com/checkoutnow?token=5O1","rel":"approve"}]}`))
	})

	for i := 0; i < 2; i++ {
		o, err := c.CreateOrder(context.Background(), CreateOrderParams{
			ReferenceID: "42",
			CustomID:    "7",
			Amount:      decimal.RequireFromString("89.9"),
			Currency:    "eur",
		})
		require.NoError(t, err)
		assert.Equal(t, "5O190127TN364715T", o.ID)
		assert.Contains(t, o.ApproveURL, "checkoutnow")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(tokenCalls))
}

func TestCaptureOrder(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/orders/ORD1/capture", r.URL.Path)
		assert.Equal(t, "capture_ORD1", r.Header.Get("PayPal-Request-Id"))
		_, _ = w.Write([]byte(`{"id":"ORD1","status":"COMPLETED","purchase_units":[{"reference_id":"42",
			"payments":{"captures":[{"id":"CAP9","status":"COMPLETED","custom_id":"7","amount":{"currency_code":"EUR","value":"89.90"}}]}}]}`))
	})

	capt, err := c.CaptureOrder(context.Background(), "ORD1", "capture_ORD1")
	require.NoError(t, err)
	assert.True(t, capt.Completed())
	assert.Equal(t, "CAP9", capt.CaptureID)
	assert.Equal(t, "42", capt.ReferenceID)
	assert.Equal(t, "7", capt.CustomID)
	assert.True(t, decimal.RequireFromString("89.9").Equal(capt.Amount))
}

func TestCaptureOrderPendingIsNotCompleted(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"ORD2","status":"COMPLETED","purchase_units":[{"reference_id":"42",
			"payments":{"captures":[{"id":"CAP10","status":"PENDING","custom_id":"7","amount":{"currency_code":"EUR","value":"89.90"}}]}}]}`))
	})

	capt, err := c.CaptureOrder(context.Background(), "ORD2", "capture_ORD2")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", capt.CaptureStatus)
	assert.False(t, capt.Completed())
}

func TestCaptureOrderError(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","message":"ORDER_NOT_APPROVED","debug_id":"d1"}`))
	})

	_, err := c.CaptureOrder(context.Background(), "ORD1", "")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "UNPROCESSABLE_ENTITY", apiErr.Name)
	assert.Equal(t, http.StatusUnprocessableEntity, apierr.Status(err))
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://x"}, zap.NewNop())
	assert.Error(t, err)
}
