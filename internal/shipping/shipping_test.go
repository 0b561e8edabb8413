package shipping

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/cache"
	"github.com/dreamshop/gateway/internal/wordpress"
)

type staticZones struct {
	zones      []cache.Zone
	loaded     bool
	refreshErr error
	refreshes  int
}

func (s *staticZones) Get() ([]cache.Zone, bool) { return s.zones, s.loaded }

func (s *staticZones) Refresh(context.Context) error {
	s.refreshes++
	if s.refreshErr == nil {
		s.loaded = true
	}
	return s.refreshErr
}

func method(id, key, value string) wordpress.ShippingZoneMethod {
	m := wordpress.ShippingZoneMethod{MethodID: id, Enabled: true, Settings: map[string]wordpress.ShippingMethodSetting{}}
	if key != "" {
		m.Settings[key] = wordpress.ShippingMethodSetting{Value: value}
	}
	return m
}

func zones() []cache.Zone {
	return []cache.Zone{
		{
			ShippingZone: wordpress.ShippingZone{ID: 1, Name: "Italia"},
			Locations:    []wordpress.ShippingZoneLocation{{Code: "IT", Type: "country"}},
			Methods: []wordpress.ShippingZoneMethod{
				method(MethodFlatRate, "cost", "9.00"),
				method(MethodFlatRate, "cost", "6.50"),
				method(MethodFreeShipping, "min_amount", "100"),
			},
		},
		{
			ShippingZone: wordpress.ShippingZone{ID: 2, Name: "Europe"},
			Locations:    []wordpress.ShippingZoneLocation{{Code: "EU", Type: "continent"}},
			Methods:      []wordpress.ShippingZoneMethod{method(MethodFlatRate, "cost", "13.00")},
		},
		{
			ShippingZone: wordpress.ShippingZone{ID: 3, Name: "Quebec"},
			Locations:    []wordpress.ShippingZoneLocation{{Code: "CA:QC", Type: "state"}},
			Methods:      []wordpress.ShippingZoneMethod{{MethodID: MethodFlatRate, Enabled: false}},
		},
	}
}

func TestFallbackTable(t *testing.T) {
	tests := map[string]string{
		"IT": "7", "SM": "7", "VA": "7",
		"FR": "12", "DE": "12", "AT": "12", "ES": "12", "BE": "12", "NL": "12", "PT": "12",
		"CH": "15", "GB": "15",
		"US": "25",
		"JP": "5.99", "": "5.99",
	}
	c := NewCalculator(nil, zap.NewNop())
	for country, want := range tests {
		q, err := c.Calculate(context.Background(), Request{Country: country})
		require.NoError(t, err)
		assert.Equal(t, want, q.Cost.String(), country)
		assert.Equal(t, SourceFallback, q.Source)
	}
}

func TestLiveQuote(t *testing.T) {
	c := NewCalculator(&staticZones{zones: zones(), loaded: true}, zap.NewNop())
	ctx := context.Background()

	q, err := c.Calculate(ctx, Request{Country: "it", Subtotal: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.Equal(t, SourceLive, q.Source)
	assert.Equal(t, MethodFlatRate, q.Method)
	assert.Equal(t, "6.5", q.Cost.String())

	q, err = c.Calculate(ctx, Request{Country: "IT", Subtotal: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, MethodFreeShipping, q.Method)
	assert.True(t, q.Cost.IsZero())

	q, err = c.Calculate(ctx, Request{Country: "FR"})
	require.NoError(t, err)
	assert.Equal(t, "13", q.Cost.String())
	assert.Equal(t, SourceLive, q.Source)

	// the matching zone has no usable method
	q, err = c.Calculate(ctx, Request{Country: "CA"})
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, q.Source)

	q, err = c.Calculate(ctx, Request{Country: "US"})
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, q.Source)
	assert.Equal(t, "25", q.Cost.String())
}

func TestCatchAllZone(t *testing.T) {
	zs := append(zones(), cache.Zone{
		ShippingZone: wordpress.ShippingZone{ID: 0, Name: "Rest of world"},
		Methods:      []wordpress.ShippingZoneMethod{method(MethodFlatRate, "cost", "30")},
	})
	c := NewCalculator(&staticZones{zones: zs, loaded: true}, zap.NewNop())
	q, err := c.Calculate(context.Background(), Request{Country: "JP"})
	require.NoError(t, err)
	assert.Equal(t, "30", q.Cost.String())
	assert.Equal(t, SourceLive, q.Source)
}

func TestRefreshFailureFallsBack(t *testing.T) {
	zs := &staticZones{refreshErr: errors.New("timeout")}
	c := NewCalculator(zs, zap.NewNop())
	q, err := c.Calculate(context.Background(), Request{Country: "DE"})
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, q.Source)
	assert.Equal(t, "12", q.Cost.String())
	assert.Equal(t, 1, zs.refreshes)
}

func TestHandler(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(NewCalculator(nil, zap.NewNop())).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/shipping/calculate",
		strings.NewReader(`{"country":"GB","subtotal":"20.00"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"country":"GB","cost":"15","currency":"EUR","method":"flat_rate","source":"fallback"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/shipping/rates?country=US", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/shipping/rates", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/shipping/calculate", strings.NewReader(`{"subtotal":1}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
