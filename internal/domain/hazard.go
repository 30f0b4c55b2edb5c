package domain

import (
	"fmt"
	"strings"
)

// HazardType names a snapshot channel. Each channel has at most one request
// in flight.
type HazardType string

const (
	HazardWind    HazardType = "wind"
	HazardWave    HazardType = "wave"
	HazardCurrent HazardType = "current"

	variablePrefix = "climate:"
)

// VariableHazard returns the channel for a raw climate variable (e.g. "u10").
func VariableHazard(variable string) HazardType {
	return HazardType(variablePrefix + variable)
}

// Variable returns the climate variable name for variable channels.
func (h HazardType) Variable() (string, bool) {
	s := string(h)
	if !strings.HasPrefix(s, variablePrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, variablePrefix), true
}

// Directional reports whether the channel ships a direction grid.
func (h HazardType) Directional() bool {
	return h == HazardWind || h == HazardCurrent
}

// ParseHazardType validates a channel name from user input.
func ParseHazardType(s string) (HazardType, error) {
	switch h := HazardType(strings.ToLower(strings.TrimSpace(s))); h {
	case HazardWind, HazardWave, HazardCurrent:
		return h, nil
	}
	if v, ok := HazardType(s).Variable(); ok && v != "" {
		return HazardType(s), nil
	}
	return "", fmt.Errorf("unknown hazard type %q", s)
}
