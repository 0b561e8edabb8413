// Package shipping quotes shipping costs from WooCommerce zones, falling back
// to a static per-country table.
package shipping

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/cache"
	"github.com/dreamshop/gateway/internal/wordpress"
)

const (
	SourceLive     = "live"
	SourceFallback = "fallback"

	MethodFlatRate     = "flat_rate"
	MethodFreeShipping = "free_shipping"

	Currency = "EUR"
)

var (
	defaultCost = decimal.RequireFromString("5.99")

	fallbackTable = map[string]decimal.Decimal{
		"IT": decimal.RequireFromString("7.00"),
		"SM": decimal.RequireFromString("7.00"),
		"VA": decimal.RequireFromString("7.00"),
		"FR": decimal.RequireFromString("12.00"),
		"DE": decimal.RequireFromString("12.00"),
		"AT": decimal.RequireFromString("12.00"),
		"ES": decimal.RequireFromString("12.00"),
		"BE": decimal.RequireFromString("12.00"),
		"NL": decimal.RequireFromString("12.00"),
		"PT": decimal.RequireFromString("12.00"),
		"CH": decimal.RequireFromString("15.00"),
		"GB": decimal.RequireFromString("15.00"),
		"US": decimal.RequireFromString("25.00"),
	}

	continents = map[string]string{
		"IT": "EU", "SM": "EU", "VA": "EU", "FR": "EU", "DE": "EU", "AT": "EU", "ES": "EU",
		"BE": "EU", "NL": "EU", "PT": "EU", "CH": "EU", "GB": "EU", "IE": "EU", "LU": "EU",
		"DK": "EU", "SE": "EU", "NO": "EU", "FI": "EU", "PL": "EU", "CZ": "EU", "GR": "EU",
		"US": "NA", "CA": "NA", "MX": "NA",
		"JP": "AS", "CN": "AS", "KR": "AS",
		"AU": "OC", "NZ": "OC",
		"BR": "SA", "AR": "SA",
	}
)

type Request struct {
	Country  string          `json:"country"`
	Postcode string          `json:"postcode,omitempty"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type Quote struct {
	Country  string          `json:"country"`
	Cost     decimal.Decimal `json:"cost"`
	Currency string          `json:"currency"`
	Method   string          `json:"method"`
	Source   string          `json:"source"`
}

// Zones is satisfied by *cache.ZoneCache.
type Zones interface {
	Get() ([]cache.Zone, bool)
	Refresh(ctx context.Context) error
}

type Calculator struct {
	zones  Zones
	logger *zap.Logger
}

// NewCalculator accepts nil zones, in which case every quote is a fallback.
func NewCalculator(zones Zones, logger *zap.Logger) *Calculator {
	return &Calculator{zones: zones, logger: logger}
}

func (c *Calculator) Calculate(ctx context.Context, req Request) (Quote, error) {
	country := strings.ToUpper(strings.TrimSpace(req.Country))
	if c.zones != nil {
		zones, loaded := c.zones.Get()
		if !loaded {
			if err := c.zones.Refresh(ctx); err != nil {
				c.logger.Warn("shipping zones unavailable, using fallback", zap.Error(err))
			}
			zones, _ = c.zones.Get()
		}
		if q, ok := quoteFromZones(zones, country, req.Subtotal); ok {
			return q, nil
		}
	}
	return Fallback(country), nil
}

// Fallback quotes from the static table.
func Fallback(country string) Quote {
	cost, ok := fallbackTable[country]
	if !ok {
		cost = defaultCost
	}
	return Quote{Country: country, Cost: cost, Currency: Currency, Method: MethodFlatRate, Source: SourceFallback}
}

func quoteFromZones(zones []cache.Zone, country string, subtotal decimal.Decimal) (Quote, bool) {
	var catchAll *cache.Zone
	for i := range zones {
		z := &zones[i]
		if z.ID == 0 {
			catchAll = z
			continue
		}
		if zoneMatches(z.Locations, country) {
			if q, ok := quoteZone(z, country, subtotal); ok {
				return q, true
			}
			return Quote{}, false
		}
	}
	if catchAll != nil {
		return quoteZone(catchAll, country, subtotal)
	}
	return Quote{}, false
}

func zoneMatches(locs []wordpress.ShippingZoneLocation, country string) bool {
	for _, l := range locs {
		code := strings.ToUpper(l.Code)
		switch l.Type {
		case "country":
			if code == country {
				return true
			}
		case "state":
			if strings.HasPrefix(code, country+":") {
				return true
			}
		case "continent":
			if continents[country] == code {
				return true
			}
		}
	}
	return false
}

func quoteZone(z *cache.Zone, country string, subtotal decimal.Decimal) (Quote, bool) {
	var cheapest *decimal.Decimal
	for _, m := range z.Methods {
		if !m.Enabled {
			continue
		}
		switch m.MethodID {
		case MethodFreeShipping:
			minAmount := m.Setting("min_amount")
			if minAmount == "" {
				return liveQuote(country, decimal.Zero, MethodFreeShipping), true
			}
			if d, err := decimal.NewFromString(minAmount); err == nil && d.LessThanOrEqual(subtotal) {
				return liveQuote(country, decimal.Zero, MethodFreeShipping), true
			}
		case MethodFlatRate:
			d, err := decimal.NewFromString(strings.TrimSpace(m.Setting("cost")))
			if err != nil || d.IsNegative() {
				continue
			}
			if cheapest == nil || d.LessThan(*cheapest) {
				cheapest = &d
			}
		}
	}
	if cheapest == nil {
		return Quote{}, false
	}
	return liveQuote(country, *cheapest, MethodFlatRate), true
}

func liveQuote(country string, cost decimal.Decimal, method string) Quote {
	return Quote{Country: country, Cost: cost, Currency: Currency, Method: method, Source: SourceLive}
}
