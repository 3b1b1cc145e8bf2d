package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/apex/log"

	"country-store/internal/cache"
	"country-store/internal/domain"
	"country-store/internal/store"
)

// ErrNotFound is returned when no country matches a search.
var ErrNotFound = errors.New("country not found")

// ErrInvalidSort is returned for an unknown Filter.Sort value.
var ErrInvalidSort = errors.New("invalid sort key")

// Sort keys accepted by List.
const (
	SortByName       = "name"
	SortByPopulation = "population"
)

// CountryStore is the part of store.CountryStore the service depends on.
type CountryStore interface {
	Countries() []domain.Country
	Loaded() bool
	GetCountries(ctx context.Context) error
	Subscribe(fn store.Listener) (string, func())
}

// Filter narrows and orders a listing.
type Filter struct {
	Region string
	Sort   string
	Limit  int
}

// RegionSummary aggregates the countries of one region.
type RegionSummary struct {
	Region     string `json:"region" yaml:"region"`
	Countries  int    `json:"countries" yaml:"countries"`
	Population int64  `json:"population" yaml:"population"`
}

// CountryService defines the interface for country-related business logic.
type CountryService interface {
	List(ctx context.Context, f Filter) ([]domain.Country, error)
	Search(ctx context.Context, name string) (*domain.Country, error)
	Regions(ctx context.Context) ([]RegionSummary, error)
	Refresh(ctx context.Context) error
}

// Service implements CountryService on top of a CountryStore.
type Service struct {
	store CountryStore
	cache cache.Cache[domain.Country]

	// mu orders cache writes against snapshot changes so a search that
	// started on an old snapshot cannot repopulate the cache after a reset.
	mu          sync.Mutex
	generation  uint64
	unsubscribe func()
}

// NewCountryService creates a service reading from st and indexing names in
// c. The index is dropped whenever the store publishes a new snapshot.
func NewCountryService(st CountryStore, c cache.Cache[domain.Country]) *Service {
	s := &Service{
		store: st,
		cache: c,
	}
	_, s.unsubscribe = st.Subscribe(s.onSnapshot)
	return s
}

// Close detaches the service from the store.
func (s *Service) Close() {
	s.unsubscribe()
}

func (s *Service) onSnapshot(countries []domain.Country) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cache.Reset()
	log.WithField("count", len(countries)).Info("country snapshot replaced, name index reset")
}

// ensureLoaded populates the store on first use only. An empty but
// successful fetch counts as loaded.
func (s *Service) ensureLoaded(ctx context.Context) error {
	if s.store.Loaded() {
		return nil
	}
	log.Info("store not loaded yet, fetching countries")
	return s.store.GetCountries(ctx)
}

// List returns the countries matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]domain.Country, error) {
	if f.Sort != "" && f.Sort != SortByName && f.Sort != SortByPopulation {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSort, f.Sort)
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	countries := s.store.Countries()
	result := countries[:0]
	for _, c := range countries {
		if f.Region == "" || strings.EqualFold(c.Region, f.Region) {
			result = append(result, c)
		}
	}

	switch f.Sort {
	case SortByPopulation:
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].Population > result[j].Population
		})
	default:
		sort.SliceStable(result, func(i, j int) bool {
			return strings.ToLower(result[i].Name.Common) < strings.ToLower(result[j].Name.Common)
		})
	}

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// Search finds a country by common or official name, case-insensitively,
// using the name index first.
func (s *Service) Search(ctx context.Context, name string) (*domain.Country, error) {
	// Normalize the key for caching
	cacheKey := strings.ToLower(strings.TrimSpace(name))
	if cacheKey == "" {
		return nil, ErrNotFound
	}

	if country, found := s.cache.Get(cacheKey); found {
		log.Debugf("CACHE HIT: found country '%s' in name index", name)
		return &country, nil
	}

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	generation := s.generation
	s.mu.Unlock()

	log.Debugf("CACHE MISS: scanning snapshot for country '%s'", name)
	for _, c := range s.store.Countries() {
		if strings.EqualFold(c.Name.Common, cacheKey) || strings.EqualFold(c.Name.Official, cacheKey) {
			s.mu.Lock()
			if s.generation == generation {
				s.cache.Set(cacheKey, c)
			}
			s.mu.Unlock()
			return &c, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Regions summarizes the snapshot per region, ordered by region name.
// Countries without a region are grouped under the empty string.
func (s *Service) Regions(ctx context.Context) ([]RegionSummary, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	byRegion := make(map[string]*RegionSummary)
	for _, c := range s.store.Countries() {
		r, ok := byRegion[c.Region]
		if !ok {
			r = &RegionSummary{Region: c.Region}
			byRegion[c.Region] = r
		}
		r.Countries++
		r.Population += c.Population
	}

	summaries := make([]RegionSummary, 0, len(byRegion))
	for _, r := range byRegion {
		summaries = append(summaries, *r)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Region < summaries[j].Region
	})
	return summaries, nil
}

// Refresh re-fetches the listing. Fetch errors are returned unchanged.
func (s *Service) Refresh(ctx context.Context) error {
	return s.store.GetCountries(ctx)
}
