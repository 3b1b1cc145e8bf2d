package api

import "net/http"

// NewRouter creates and configures a new HTTP router.
func NewRouter(h *CountryHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/countries", h.ListCountries)
	mux.HandleFunc("GET /api/countries/search", h.SearchCountry)
	mux.HandleFunc("POST /api/countries/refresh", h.Refresh)
	mux.HandleFunc("GET /api/regions", h.ListRegions)
	mux.HandleFunc("GET /healthz", h.Health)
	return mux
}
