package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/wordpress"
)

// ZoneSource is satisfied by *wordpress.Client.
type ZoneSource interface {
	ListShippingZones(ctx context.Context) ([]wordpress.ShippingZone, error)
	ListShippingZoneLocations(ctx context.Context, zoneID int64) ([]wordpress.ShippingZoneLocation, error)
	ListShippingZoneMethods(ctx context.Context, zoneID int64) ([]wordpress.ShippingZoneMethod, error)
}

type Zone struct {
	wordpress.ShippingZone
	Locations []wordpress.ShippingZoneLocation
	Methods   []wordpress.ShippingZoneMethod
}

// ZoneCache holds the WooCommerce shipping zones, ordered as WooCommerce
// evaluates them.
type ZoneCache struct {
	mu       sync.RWMutex
	zones    []Zone
	loadedAt time.Time
	source   ZoneSource
	logger   *zap.Logger
}

func NewZoneCache(source ZoneSource, logger *zap.Logger) *ZoneCache {
	return &ZoneCache{source: source, logger: logger}
}

func (c *ZoneCache) Refresh(ctx context.Context) error {
	list, err := c.source.ListShippingZones(ctx)
	if err != nil {
		return err
	}
	zones := make([]Zone, 0, len(list))
	for _, z := range list {
		locs, err := c.source.ListShippingZoneLocations(ctx, z.ID)
		if err != nil {
			return fmt.Errorf("refresh zone %d: %w", z.ID, err)
		}
		methods, err := c.source.ListShippingZoneMethods(ctx, z.ID)
		if err != nil {
			return fmt.Errorf("refresh zone %d: %w", z.ID, err)
		}
		zones = append(zones, Zone{ShippingZone: z, Locations: locs, Methods: methods})
	}
	sort.SliceStable(zones, func(i, j int) bool { return zones[i].Order < zones[j].Order })

	c.mu.Lock()
	c.zones = zones
	c.loadedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// Get returns the cached zones and whether a refresh has ever succeeded.
func (c *ZoneCache) Get() ([]Zone, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.zones, !c.loadedAt.IsZero()
}

// StartAutoRefresh keeps the last good snapshot when a refresh fails.
func (c *ZoneCache) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("shipping zone refresh failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
