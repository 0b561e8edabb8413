package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/wordpress"
)

type fakeSource struct {
	zones []wordpress.ShippingZone
	err   error
}

func (f *fakeSource) ListShippingZones(context.Context) ([]wordpress.ShippingZone, error) {
	return f.zones, f.err
}

func (f *fakeSource) ListShippingZoneLocations(_ context.Context, id int64) ([]wordpress.ShippingZoneLocation, error) {
	if id == 0 {
		return nil, nil
	}
	return []wordpress.ShippingZoneLocation{{Code: "IT", Type: "country"}}, nil
}

func (f *fakeSource) ListShippingZoneMethods(_ context.Context, id int64) ([]wordpress.ShippingZoneMethod, error) {
	return []wordpress.ShippingZoneMethod{{InstanceID: id, MethodID: "flat_rate", Enabled: true}}, nil
}

func TestZoneCacheRefresh(t *testing.T) {
	src := &fakeSource{zones: []wordpress.ShippingZone{{ID: 2, Order: 2}, {ID: 1, Order: 1}, {ID: 0, Order: 0}}}
	c := NewZoneCache(src, zap.NewNop())

	_, loaded := c.Get()
	assert.False(t, loaded)

	require.NoError(t, c.Refresh(context.Background()))
	zones, loaded := c.Get()
	assert.True(t, loaded)
	require.Len(t, zones, 3)
	assert.Equal(t, []int64{0, 1, 2}, []int64{zones[0].ID, zones[1].ID, zones[2].ID})
	assert.Len(t, zones[1].Locations, 1)
	assert.Len(t, zones[2].Methods, 1)
}

func TestZoneCacheKeepsSnapshotOnError(t *testing.T) {
	src := &fakeSource{zones: []wordpress.ShippingZone{{ID: 1}}}
	c := NewZoneCache(src, zap.NewNop())
	require.NoError(t, c.Refresh(context.Background()))

	src.err = errors.New("wordpress down")
	assert.Error(t, c.Refresh(context.Background()))
	zones, loaded := c.Get()
	assert.True(t, loaded)
	assert.Len(t, zones, 1)
}
