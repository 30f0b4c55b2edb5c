package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/observability"
)

// --- fakes for cache tests ---

type countingFetcher struct {
	calls int
	snap  domain.GridSnapshot
	err   error
}

func (f *countingFetcher) FetchSnapshot(_ context.Context, req domain.SnapshotRequest) (domain.GridSnapshot, error) {
	f.calls++
	s := f.snap
	s.Hazard = req.Hazard
	return s, f.err
}

type memoryStore struct {
	data   map[string]domain.GridSnapshot
	getErr error
	sets   int
}

func (s *memoryStore) Get(_ context.Context, key string) (domain.GridSnapshot, bool, error) {
	if s.getErr != nil {
		return domain.GridSnapshot{}, false, s.getErr
	}
	snap, ok := s.data[key]
	return snap, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key string, snap domain.GridSnapshot) error {
	s.sets++
	s.data[key] = snap
	return nil
}

func sampleGrid() domain.GridSnapshot {
	return domain.GridSnapshot{
		Time:   snapshotTime,
		Lat:    []float64{-22, -23},
		Lon:    []float64{-40},
		Values: [][]float64{{1.5}, {math.NaN()}},
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// --- CachedFetcher tests ---

func TestCachedFetcher_MemoryHit(t *testing.T) {
	inner := &countingFetcher{snap: sampleGrid()}
	cached := NewCachedFetcher(inner, 10, nil, observability.NewMetricsForTesting(), discard())
	req := domain.SnapshotRequest{Hazard: domain.HazardWave, Time: snapshotTime}

	_, err := cached.FetchSnapshot(context.Background(), req)
	require.NoError(t, err)
	s2, err := cached.FetchSnapshot(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, 1.5, s2.Values[0][0])
}

func TestCachedFetcher_DifferentThresholdsMiss(t *testing.T) {
	inner := &countingFetcher{snap: sampleGrid()}
	cached := NewCachedFetcher(inner, 10, nil, nil, discard())

	for _, op := range []float64{10, 15, 10} {
		_, err := cached.FetchSnapshot(context.Background(), domain.SnapshotRequest{
			Hazard: domain.HazardWind, Time: snapshotTime,
			Thresholds: domain.ThresholdSpec{OperationalMax: op, AttentionMax: 20},
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.calls)
}

func TestCachedFetcher_ErrorsAndEmptyNotCached(t *testing.T) {
	inner := &countingFetcher{err: errors.New("boom")}
	cached := NewCachedFetcher(inner, 10, nil, nil, discard())
	req := domain.SnapshotRequest{Hazard: domain.HazardWave, Time: snapshotTime}

	_, err := cached.FetchSnapshot(context.Background(), req)
	require.Error(t, err)

	inner.err = nil
	_, err = cached.FetchSnapshot(context.Background(), req)
	require.NoError(t, err)
	_, err = cached.FetchSnapshot(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 0, cached.cache.len())
}

func TestCachedFetcher_StoreTier(t *testing.T) {
	store := &memoryStore{data: map[string]domain.GridSnapshot{}}
	inner := &countingFetcher{snap: sampleGrid()}
	req := domain.SnapshotRequest{Hazard: domain.HazardCurrent, Time: snapshotTime}

	first := NewCachedFetcher(inner, 10, store, nil, discard())
	_, err := first.FetchSnapshot(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, store.sets)

	// A second replica with a cold memory cache is served from the store.
	second := NewCachedFetcher(inner, 10, store, nil, discard())
	snap, err := second.FetchSnapshot(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, domain.HazardCurrent, snap.Hazard)
}

func TestCachedFetcher_StoreFailureFallsThrough(t *testing.T) {
	store := &memoryStore{data: map[string]domain.GridSnapshot{}, getErr: errors.New("connection refused")}
	inner := &countingFetcher{snap: sampleGrid()}
	cached := NewCachedFetcher(inner, 10, store, nil, discard())

	_, err := cached.FetchSnapshot(context.Background(), domain.SnapshotRequest{Hazard: domain.HazardWave, Time: snapshotTime})

	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}

// --- lruCache tests ---

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", domain.GridSnapshot{Hazard: "a"})
	c.put("b", domain.GridSnapshot{Hazard: "b"})

	_, ok := c.get("a") // a becomes most recent
	require.True(t, ok)

	c.put("c", domain.GridSnapshot{Hazard: "c"})

	_, ok = c.get("b")
	assert.False(t, ok, "b should be evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", domain.GridSnapshot{Hazard: "old"})
	c.put("a", domain.GridSnapshot{Hazard: "new"})

	got, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, domain.HazardType("new"), got.Hazard)
	assert.Equal(t, 1, c.len())
}

// --- store encoding ---

func TestSnapshotEncoding_PreservesMissingCells(t *testing.T) {
	in := sampleGrid()
	in.Hazard = domain.HazardWind
	in.Direction = [][]float64{{45}, {math.Inf(1)}}

	raw, err := encodeSnapshot(in)
	require.NoError(t, err)
	out, err := decodeSnapshot(raw)
	require.NoError(t, err)

	want := in
	want.Direction = [][]float64{{45}, {math.NaN()}}
	if diff := cmp.Diff(want, out, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("decoded snapshot mismatch (-want +got):\n%s", diff)
	}
}
