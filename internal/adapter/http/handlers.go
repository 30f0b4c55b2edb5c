package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/layers"
	"github.com/couchcryptid/hazard-map-sync/internal/pipeline"
)

const (
	defaultSearchLimit = 20
	maxEventBody       = 64 << 10
)

func (s *Server) handleListHazards(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.pipe.Statuses())
}

func (s *Server) handleHazardStatus(w http.ResponseWriter, r *http.Request) {
	h, err := hazardFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, ok := s.pipe.Status(h)
	if !ok {
		writeError(w, http.StatusNotFound, "hazard channel is not shown")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, st)
}

func (s *Server) handleShowHazard(w http.ResponseWriter, r *http.Request) {
	h, err := hazardFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := parseHazardRequest(h, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := s.pipe.ShowHazard(r.Context(), req)
	switch {
	case errors.Is(err, pipeline.ErrSuperseded):
		sharedobs.WriteJSON(w, http.StatusAccepted, st)
	case err != nil:
		s.logger.Warn("show hazard failed", "hazard", h, "error", err)
		sharedobs.WriteJSON(w, http.StatusBadGateway, st)
	default:
		sharedobs.WriteJSON(w, http.StatusOK, st)
	}
}

func (s *Server) handleHideHazard(w http.ResponseWriter, r *http.Request) {
	h, err := hazardFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.pipe.HideHazard(h); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBoundaries(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"available": s.pipe.Locations().Datasets(),
		"shown":     s.pipe.Boundaries(),
	})
}

func (s *Server) handleShowBoundaries(w http.ResponseWriter, r *http.Request) {
	opacity, err := optionalFloat(r, "opacity")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if opacity == nil {
		one := 1.0
		opacity = &one
	}
	st, err := s.pipe.ShowBoundaries(r.PathValue("dataset"), *opacity)
	switch {
	case errors.Is(err, pipeline.ErrUnknownDataset):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		sharedobs.WriteJSON(w, http.StatusOK, st)
	}
}

func (s *Server) handleHideBoundaries(w http.ResponseWriter, r *http.Request) {
	if err := s.pipe.HideBoundaries(r.PathValue("dataset")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListLayers(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.pipe.Registry().Layers())
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.pipe.Registry().Has(id) {
		writeError(w, http.StatusNotFound, layers.ErrUnknownLayer.Error())
		return
	}
	props, ok := s.pipe.Registry().Hovered(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, props)
}

func (s *Server) handleLayerEvent(w http.ResponseWriter, r *http.Request) {
	var ev layers.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event body")
		return
	}
	id, event := r.PathValue("id"), r.PathValue("event")
	ev.Type, ev.LayerID = event, id

	n, err := s.pipe.HandleEvent(id, event, ev)
	if errors.Is(err, layers.ErrUnknownLayer) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]int{"delivered": n})
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	fc, ok := s.sources.Source(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, layers.ErrUnknownSource.Error())
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(fc) //nolint:errcheck // client went away
}

func (s *Server) handleSearchLocations(w http.ResponseWriter, r *http.Request) {
	limit := defaultSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.pipe.Locations().Search(r.URL.Query().Get("q"), limit))
}

func (s *Server) handleNearestLocation(w http.ResponseWriter, r *http.Request) {
	lat, err := requiredFloat(r, "lat")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lon, err := requiredFloat(r, "lon")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	loc, meters, ok := s.pipe.Locations().Nearest(lat, lon)
	if !ok {
		writeError(w, http.StatusNotFound, "no locations loaded")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"location":   loc,
		"distance_m": meters,
	})
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.pipe.Locations().ByKey(r.PathValue("key"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown location")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, loc)
}

func hazardFromPath(r *http.Request) (domain.HazardType, error) {
	name := r.PathValue("hazard")
	if name == "variable" {
		v := r.URL.Query().Get("variable")
		if v == "" {
			return "", errors.New("variable is required")
		}
		return domain.VariableHazard(v), nil
	}
	return domain.ParseHazardType(name)
}

func parseHazardRequest(h domain.HazardType, r *http.Request) (pipeline.HazardRequest, error) {
	q := r.URL.Query()
	req := pipeline.HazardRequest{Hazard: h, Style: pipeline.Style(q.Get("style"))}

	ts := q.Get("time")
	if ts == "" {
		return req, errors.New("time is required")
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return req, errors.New("invalid time: must be RFC3339")
	}
	req.Time = t.UTC()

	switch req.Style {
	case "", pipeline.StyleHeatmap, pipeline.StyleCircle:
	default:
		return req, errors.New("invalid style")
	}

	if req.Bounds, err = parseBounds(r); err != nil {
		return req, err
	}

	op, err := optionalFloat(r, "operational_max")
	if err != nil {
		return req, err
	}
	att, err := optionalFloat(r, "attention_max")
	if err != nil {
		return req, err
	}
	if op != nil || att != nil {
		th := domain.ThresholdsFor(h)
		if op != nil {
			th.OperationalMax = *op
		}
		if att != nil {
			th.AttentionMax = *att
		}
		req.Thresholds = &th
	}

	if req.Opacity, err = optionalFloat(r, "opacity"); err != nil {
		return req, err
	}
	return req, nil
}

func parseBounds(r *http.Request) (*domain.BoundingBox, error) {
	keys := []string{"lon_min", "lat_min", "lon_max", "lat_max"}
	vals := make([]float64, len(keys))
	present := 0
	for i, k := range keys {
		v, err := optionalFloat(r, k)
		if err != nil {
			return nil, err
		}
		if v != nil {
			vals[i] = *v
			present++
		}
	}
	switch present {
	case 0:
		return nil, nil
	case len(keys):
	default:
		return nil, errors.New("bounding box needs lat_min, lat_max, lon_min and lon_max")
	}
	b := domain.BoundingBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if !b.Valid() {
		return nil, errors.New("invalid bounding box")
	}
	return &b, nil
}

func optionalFloat(r *http.Request, key string) (*float64, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, errors.New("invalid " + key)
	}
	return &v, nil
}

func requiredFloat(r *http.Request, key string) (float64, error) {
	v, err := optionalFloat(r, key)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, errors.New(key + " is required")
	}
	return *v, nil
}
