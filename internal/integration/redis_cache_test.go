//go:build integration

package integration_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hazard-map-sync/internal/adapter/backend"
	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/observability"
)

// TestRedisSnapshotCacheSharedAcrossInstances checks that a snapshot fetched
// by one service instance is served from Redis to another.
func TestRedisSnapshotCacheSharedAcrossInstances(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	addr := startRedis(ctx, t)
	rc := backend.OpenRedis(addr, "", 0)
	t.Cleanup(func() { _ = rc.Close() })
	store := backend.NewRedisStore(rc, time.Minute)
	require.NoError(t, store.Ping(ctx))

	srv, calls := fakeBackend(t)
	client := backend.NewClient(srv.URL, 10*time.Second, discardLogger())
	req := domain.SnapshotRequest{
		Hazard:     domain.HazardWind,
		Time:       snapshotTime,
		Thresholds: domain.ThresholdsFor(domain.HazardWind),
	}

	first := backend.NewCachedFetcher(client, 4, store, observability.NewMetricsForTesting(), discardLogger())
	snap, err := first.FetchSnapshot(ctx, req)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	second := backend.NewCachedFetcher(client, 4, store, observability.NewMetricsForTesting(), discardLogger())
	cached, err := second.FetchSnapshot(ctx, req)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load(), "second instance is served from redis")

	assert.Equal(t, snap.Lat, cached.Lat)
	assert.Equal(t, snap.Lon, cached.Lon)
	assert.Equal(t, snap.Values, cached.Values)
	assert.True(t, snap.Time.Equal(cached.Time))
	assert.False(t, math.IsNaN(cached.Values[0][0]))

	other := req
	other.Time = snapshotTime.Add(time.Hour)
	_, err = second.FetchSnapshot(ctx, other)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}
