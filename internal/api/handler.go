package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/apex/log"

	"country-store/internal/client"
	"country-store/internal/service"
)

// StoreStatus reports the store state for health checks.
type StoreStatus interface {
	Len() int
	Loaded() bool
}

// CountryHandler handles HTTP requests for country information.
type CountryHandler struct {
	service service.CountryService
	status  StoreStatus
}

// NewCountryHandler creates a new handler with a given service.
func NewCountryHandler(s service.CountryService, status StoreStatus) *CountryHandler {
	return &CountryHandler{
		service: s,
		status:  status,
	}
}

// ListCountries is the handler for GET /api/countries.
func (h *CountryHandler) ListCountries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.Filter{
		Region: q.Get("region"),
		Sort:   q.Get("sort"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "Query parameter 'limit' must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	countries, err := h.service.List(r.Context(), filter)
	if err != nil {
		log.WithError(err).Error("failed to list countries")
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, countries)
}

// SearchCountry is the handler for the /api/countries/search endpoint.
func (h *CountryHandler) SearchCountry(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "Query parameter 'name' is required")
		return
	}

	country, err := h.service.Search(r.Context(), name)
	if err != nil {
		log.WithError(err).Errorf("failed to search for country '%s'", name)
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, country)
}

// ListRegions is the handler for GET /api/regions.
func (h *CountryHandler) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.service.Regions(r.Context())
	if err != nil {
		log.WithError(err).Error("failed to summarize regions")
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, regions)
}

// Refresh is the handler for POST /api/countries/refresh.
func (h *CountryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context()); err != nil {
		log.WithError(err).Error("failed to refresh countries")
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"count": h.status.Len()})
}

// Health is the handler for GET /healthz.
func (h *CountryHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"loaded": h.status.Loaded(),
		"count":  h.status.Len(),
	})
}

func (h *CountryHandler) respondServiceError(w http.ResponseWriter, err error) {
	var fetchErr *client.FetchError
	switch {
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, "Country not found")
	case errors.Is(err, service.ErrInvalidSort):
		respondError(w, http.StatusBadRequest, "Query parameter 'sort' must be 'name' or 'population'")
	case errors.As(err, &fetchErr):
		respondError(w, http.StatusBadGateway, "Upstream country source unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}
