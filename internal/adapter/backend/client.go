// Package backend fetches hazard grid snapshots from the climate API.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
)

const apiPrefix = "/api/v1/climate"

// Client implements snapshot.Fetcher against the hazard backend HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a hazard backend client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// FetchSnapshot requests the grid for one hazard channel at one timestamp.
func (c *Client) FetchSnapshot(ctx context.Context, req domain.SnapshotRequest) (domain.GridSnapshot, error) {
	path, params := endpoint(req)
	params.Set("time", req.Time.UTC().Format(time.RFC3339))
	if b := req.Bounds; b != nil {
		params.Set("lat_min", formatFloat(b.MinLat))
		params.Set("lat_max", formatFloat(b.MaxLat))
		params.Set("lon_min", formatFloat(b.MinLon))
		params.Set("lon_max", formatFloat(b.MaxLon))
	}

	wire, err := c.doRequest(ctx, c.baseURL+path+"?"+params.Encode(), string(req.Hazard))
	if err != nil {
		return domain.GridSnapshot{}, err
	}

	snap := wire.toDomain()
	snap.Hazard = req.Hazard
	if snap.Time.IsZero() {
		snap.Time = req.Time
	}
	return snap, nil
}

// endpoint maps a hazard channel to its API path and channel-specific
// parameters.
func endpoint(req domain.SnapshotRequest) (string, url.Values) {
	params := url.Values{}
	if v, ok := req.Hazard.Variable(); ok {
		params.Set("variable", v)
		return apiPrefix + "/snapshot", params
	}
	switch req.Hazard {
	case domain.HazardWind:
		th := req.Thresholds.Normalized()
		params.Set("operational_max_knots", formatFloat(th.OperationalMax))
		params.Set("attention_max_knots", formatFloat(th.AttentionMax))
		return apiPrefix + "/wind-hazard-snapshot", params
	case domain.HazardWave:
		return apiPrefix + "/wave-snapshot", params
	case domain.HazardCurrent:
		return apiPrefix + "/current-snapshot", params
	default:
		params.Set("variable", string(req.Hazard))
		return apiPrefix + "/snapshot", params
	}
}

func (c *Client) doRequest(ctx context.Context, fullURL, hazard string) (wireSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return wireSnapshot{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wireSnapshot{}, fmt.Errorf("%s snapshot request: %w", hazard, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return wireSnapshot{}, fmt.Errorf("hazard API error: status %d: %s", resp.StatusCode, body)
	}

	var wire wireSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return wireSnapshot{}, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("hazard API response", "hazard", hazard, "rows", len(wire.Lat), "cols", len(wire.Lon), "duration", time.Since(start))
	return wire, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
