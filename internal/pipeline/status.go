package pipeline

import (
	"sort"
	"time"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/heatmap"
)

// ChannelState is the lifecycle state of a hazard channel.
type ChannelState string

const (
	StateLoading ChannelState = "loading"
	StateReady   ChannelState = "ready"
	StateEmpty   ChannelState = "empty"
	StateFailed  ChannelState = "failed"
)

// ChannelStatus describes what a hazard channel currently shows.
type ChannelStatus struct {
	Hazard     domain.HazardType    `json:"hazard"`
	State      ChannelState         `json:"state"`
	Error      string               `json:"error,omitempty"`
	Time       time.Time            `json:"time"`
	LayerID    string               `json:"layer_id"`
	Features   int                  `json:"features"`
	Arrows     int                  `json:"arrows"`
	Stride     int                  `json:"stride"`
	Stops      *heatmap.RampStops   `json:"stops,omitempty"`
	Thresholds domain.ThresholdSpec `json:"thresholds"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Status returns the state of a hazard channel.
func (p *Pipeline) Status(h domain.HazardType) (ChannelStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.channels[h]
	if !ok {
		return ChannelStatus{}, false
	}
	return *s, true
}

// Statuses returns every known channel sorted by hazard.
func (p *Pipeline) Statuses() []ChannelStatus {
	p.mu.Lock()
	out := make([]ChannelStatus, 0, len(p.channels))
	for _, s := range p.channels {
		out = append(out, *s)
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Hazard < out[j].Hazard })
	return out
}

func (p *Pipeline) statusOf(h domain.HazardType) ChannelStatus {
	s, _ := p.Status(h)
	return s
}

func (p *Pipeline) setStatus(h domain.HazardType, fn func(*ChannelStatus)) ChannelStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.channels[h]
	if !ok {
		s = &ChannelStatus{Hazard: h, LayerID: HazardLayerID(h)}
		p.channels[h] = s
	}
	fn(s)
	return *s
}

func (p *Pipeline) restoreStatus(h domain.HazardType, prev ChannelStatus, existed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !existed {
		delete(p.channels, h)
		return
	}
	s := prev
	p.channels[h] = &s
}
