package wordpress

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dreamshop/gateway/internal/models"
)

func (c *Client) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	err := c.doJSON(ctx, Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("%s/orders/%d", WooCommercePath, id),
	}, &o)
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &o, nil
}

func (c *Client) ListOrders(ctx context.Context, query url.Values) ([]models.Order, error) {
	var orders []models.Order
	err := c.doJSON(ctx, Request{
		Method: http.MethodGet,
		Path:   WooCommercePath + "/orders",
		Query:  query,
	}, &orders)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (c *Client) CreateOrder(ctx context.Context, payload interface{}) (*models.Order, error) {
	var o models.Order
	err := c.doJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   WooCommercePath + "/orders",
		Body:   payload,
	}, &o)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &o, nil
}

// OrderUpdate is the body of a single PUT /orders/{id}.
type OrderUpdate struct {
	Status             models.OrderStatus `json:"status,omitempty"`
	PaymentMethod      string             `json:"payment_method,omitempty"`
	PaymentMethodTitle string             `json:"payment_method_title,omitempty"`
	TransactionID      string             `json:"transaction_id,omitempty"`
	SetPaid            bool               `json:"set_paid,omitempty"`
	MetaData           []models.MetaData  `json:"meta_data,omitempty"`
}

func (c *Client) UpdateOrder(ctx context.Context, id int64, upd OrderUpdate) (*models.Order, error) {
	var o models.Order
	err := c.doJSON(ctx, Request{
		Method: http.MethodPut,
		Path:   fmt.Sprintf("%s/orders/%d", WooCommercePath, id),
		Body:   upd,
	}, &o)
	if err != nil {
		return nil, fmt.Errorf("update order %d: %w", id, err)
	}
	return &o, nil
}

type ShippingZone struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type ShippingZoneLocation struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

type ShippingMethodSetting struct {
	Value string `json:"value"`
}

type ShippingZoneMethod struct {
	InstanceID int64                            `json:"instance_id"`
	Title      string                           `json:"title"`
	Enabled    bool                             `json:"enabled"`
	MethodID   string                           `json:"method_id"`
	Settings   map[string]ShippingMethodSetting `json:"settings"`
}

func (m ShippingZoneMethod) Setting(key string) string {
	if s, ok := m.Settings[key]; ok {
		return s.Value
	}
	return ""
}

func (c *Client) ListShippingZones(ctx context.Context) ([]ShippingZone, error) {
	var zones []ShippingZone
	if err := c.doJSON(ctx, Request{Path: WooCommercePath + "/shipping/zones"}, &zones); err != nil {
		return nil, fmt.Errorf("list shipping zones: %w", err)
	}
	return zones, nil
}

func (c *Client) ListShippingZoneLocations(ctx context.Context, zoneID int64) ([]ShippingZoneLocation, error) {
	var locs []ShippingZoneLocation
	path := fmt.Sprintf("%s/shipping/zones/%d/locations", WooCommercePath, zoneID)
	if err := c.doJSON(ctx, Request{Path: path}, &locs); err != nil {
		return nil, fmt.Errorf("list zone %d locations: %w", zoneID, err)
	}
	return locs, nil
}

func (c *Client) ListShippingZoneMethods(ctx context.Context, zoneID int64) ([]ShippingZoneMethod, error) {
	var methods []ShippingZoneMethod
	path := fmt.Sprintf("%s/shipping/zones/%d/methods", WooCommercePath, zoneID)
	if err := c.doJSON(ctx, Request{Path: path}, &methods); err != nil {
		return nil, fmt.Errorf("list zone %d methods: %w", zoneID, err)
	}
	return methods, nil
}
