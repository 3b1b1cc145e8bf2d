package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"country-store/internal/domain"
)

// Fetcher retrieves the complete country listing from its source.
type Fetcher interface {
	FetchCountries(ctx context.Context) ([]domain.Country, error)
}

// Listener receives a copy of each new snapshot.
type Listener func(countries []domain.Country)

// CountryStore holds the most recent complete country snapshot in memory.
// The zero snapshot is empty. Only GetCountries replaces it.
type CountryStore struct {
	fetcher Fetcher

	// pubMu spans a replacement and its notification, so listeners see
	// snapshots in the order they were stored.
	pubMu sync.Mutex

	mu        sync.RWMutex
	countries []domain.Country
	updatedAt time.Time

	subMu     sync.Mutex
	listeners map[string]Listener
}

// NewCountryStore creates an empty store backed by the given fetcher.
func NewCountryStore(f Fetcher) *CountryStore {
	return &CountryStore{
		fetcher:   f,
		countries: []domain.Country{},
		listeners: make(map[string]Listener),
	}
}

// Countries returns a copy of the current snapshot. It never fetches.
func (s *CountryStore) Countries() []domain.Country {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.countries)
}

// Len returns the number of countries in the current snapshot.
func (s *CountryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.countries)
}

// Loaded reports whether a fetch has ever succeeded, including one that
// returned no countries.
func (s *CountryStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.updatedAt.IsZero()
}

// UpdatedAt returns the time of the last successful replacement.
func (s *CountryStore) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// GetCountries fetches the listing and replaces the snapshot with it. Errors
// from the fetcher are returned as is and leave the snapshot untouched.
// Concurrent calls are not coalesced; the last one to finish wins.
func (s *CountryStore) GetCountries(ctx context.Context) error {
	countries, err := s.fetcher.FetchCountries(ctx)
	if err != nil {
		return err
	}
	if countries == nil {
		countries = []domain.Country{}
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	s.countries = countries
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.notify(countries)
	return nil
}

// Subscribe registers fn to be called after every successful replacement.
// Deliveries are sequential and in replacement order. fn must not call
// GetCountries. The returned cancel func is safe to call more than once.
func (s *CountryStore) Subscribe(fn Listener) (string, func()) {
	id := uuid.NewString()

	s.subMu.Lock()
	s.listeners[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return id, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.listeners, id)
			s.subMu.Unlock()
		})
	}
}

func (s *CountryStore) notify(countries []domain.Country) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(clone(countries))
	}
}

func clone(countries []domain.Country) []domain.Country {
	out := make([]domain.Country, len(countries))
	copy(out, countries)
	return out
}
