package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"country-store/internal/client"
	"country-store/internal/domain"
)

// MockFetcher satisfies the Fetcher interface.
type MockFetcher struct {
	FetchFunc func(ctx context.Context) ([]domain.Country, error)
}

func (m *MockFetcher) FetchCountries(ctx context.Context) ([]domain.Country, error) {
	return m.FetchFunc(ctx)
}

func staticFetcher(countries []domain.Country, err error) *MockFetcher {
	return &MockFetcher{
		FetchFunc: func(ctx context.Context) ([]domain.Country, error) {
			return countries, err
		},
	}
}

var testland = domain.Country{
	Flag:       "🏳️",
	Name:       domain.CountryName{Common: "Testland", Official: "The Testland"},
	Population: 42,
	Region:     "Testia",
}

func TestCountryStore_InitiallyEmpty(t *testing.T) {
	s := NewCountryStore(staticFetcher(nil, nil))

	assert.NotNil(t, s.Countries())
	assert.Empty(t, s.Countries())
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Loaded())
	assert.True(t, s.UpdatedAt().IsZero())
}

func TestCountryStore_GetCountries_ReplacesSnapshot(t *testing.T) {
	first := []domain.Country{testland, {Name: domain.CountryName{Common: "Other"}}}
	second := []domain.Country{{Name: domain.CountryName{Common: "Only"}}}

	var calls int32
	s := NewCountryStore(&MockFetcher{
		FetchFunc: func(ctx context.Context) ([]domain.Country, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return first, nil
			}
			return second, nil
		},
	})

	require.NoError(t, s.GetCountries(context.Background()))
	assert.Equal(t, first, s.Countries())

	require.NoError(t, s.GetCountries(context.Background()))
	assert.Equal(t, second, s.Countries(), "snapshot should be replaced, not merged")
	assert.True(t, s.Loaded())
}

func TestCountryStore_GetCountries_EmptyResponse(t *testing.T) {
	s := NewCountryStore(staticFetcher([]domain.Country{}, nil))

	require.NoError(t, s.GetCountries(context.Background()))

	assert.Empty(t, s.Countries())
	assert.True(t, s.Loaded())
}

func TestCountryStore_GetCountries_ErrorLeavesStateUntouched(t *testing.T) {
	fetchErr := errors.New("network down")
	fail := false
	s := NewCountryStore(&MockFetcher{
		FetchFunc: func(ctx context.Context) ([]domain.Country, error) {
			if fail {
				return nil, fetchErr
			}
			return []domain.Country{testland}, nil
		},
	})
	require.NoError(t, s.GetCountries(context.Background()))
	before := s.Countries()
	updatedAt := s.UpdatedAt()

	fail = true
	err := s.GetCountries(context.Background())

	assert.Same(t, fetchErr, err, "error should be propagated unchanged")
	assert.Equal(t, before, s.Countries())
	assert.Equal(t, updatedAt, s.UpdatedAt())
}

func TestCountryStore_CountriesReturnsCopy(t *testing.T) {
	s := NewCountryStore(staticFetcher([]domain.Country{testland}, nil))
	require.NoError(t, s.GetCountries(context.Background()))

	got := s.Countries()
	got[0].Population = 0
	got[0].Name.Common = "Changed"

	assert.Equal(t, int64(42), s.Countries()[0].Population)
	assert.Equal(t, "Testland", s.Countries()[0].Name.Common)
}

func TestCountryStore_Subscribe(t *testing.T) {
	s := NewCountryStore(staticFetcher([]domain.Country{testland}, nil))

	var mu sync.Mutex
	var seen [][]domain.Country
	id, cancel := s.Subscribe(func(countries []domain.Country) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, countries)
	})
	assert.NotEmpty(t, id)

	require.NoError(t, s.GetCountries(context.Background()))
	require.NoError(t, s.GetCountries(context.Background()))

	cancel()
	cancel() // idempotent
	require.NoError(t, s.GetCountries(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, []domain.Country{testland}, seen[0])
}

func TestCountryStore_Subscribe_NotCalledOnError(t *testing.T) {
	s := NewCountryStore(staticFetcher(nil, errors.New("boom")))

	called := false
	_, cancel := s.Subscribe(func([]domain.Country) { called = true })
	defer cancel()

	require.Error(t, s.GetCountries(context.Background()))
	assert.False(t, called)
}

func TestCountryStore_Subscribe_DeliveredInReplacementOrder(t *testing.T) {
	var n int32
	s := NewCountryStore(&MockFetcher{
		FetchFunc: func(ctx context.Context) ([]domain.Country, error) {
			i := atomic.AddInt32(&n, 1)
			return []domain.Country{{Name: domain.CountryName{Common: fmt.Sprintf("snapshot-%d", i)}}}, nil
		},
	})

	entered := make(chan struct{})
	release := make(chan struct{})
	var deliveries int32
	var mu sync.Mutex
	var lastSeen string
	_, cancel := s.Subscribe(func(countries []domain.Country) {
		// Hold the first delivery until the second fetch has finished.
		if atomic.AddInt32(&deliveries, 1) == 1 {
			close(entered)
			<-release
		}
		mu.Lock()
		defer mu.Unlock()
		lastSeen = countries[0].Name.Common
	})
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- s.GetCountries(context.Background()) }()
	<-entered
	go func() { errs <- s.GetCountries(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "snapshot-1", s.Countries()[0].Name.Common, "second replacement waits for the first delivery")
	close(release)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(2), atomic.LoadInt32(&deliveries))
	assert.Equal(t, "snapshot-2", lastSeen)
	assert.Equal(t, lastSeen, s.Countries()[0].Name.Common)
}

// Race Condition Test
func TestCountryStore_ConcurrentGetCountries(t *testing.T) {
	snapshots := [][]domain.Country{
		{{Name: domain.CountryName{Common: "A"}}, {Name: domain.CountryName{Common: "A"}}},
		{{Name: domain.CountryName{Common: "B"}}, {Name: domain.CountryName{Common: "B"}}, {Name: domain.CountryName{Common: "B"}}},
	}
	var n int32
	s := NewCountryStore(&MockFetcher{
		FetchFunc: func(ctx context.Context) ([]domain.Country, error) {
			i := atomic.AddInt32(&n, 1)
			time.Sleep(time.Duration(i%3) * time.Millisecond)
			return snapshots[i%2], nil
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.GetCountries(context.Background()))
		}()
		go func() {
			defer wg.Done()
			assertConsistent(t, s.Countries())
		}()
	}
	wg.Wait()

	assertConsistent(t, s.Countries())
	assert.True(t, s.Loaded())
}

// assertConsistent checks that a snapshot came from exactly one fetch.
func assertConsistent(t *testing.T, countries []domain.Country) {
	t.Helper()
	switch len(countries) {
	case 0:
	case 2:
		for _, c := range countries {
			assert.Equal(t, "A", c.Name.Common)
		}
	case 3:
		for _, c := range countries {
			assert.Equal(t, "B", c.Name.Common)
		}
	default:
		t.Errorf("unexpected snapshot size %d", len(countries))
	}
}

func TestCountryStore_WithRestCountriesClient(t *testing.T) {
	body := `[{"name":{"common":"Testland","official":"The Testland"},"flag":"🏳️","population":42,"region":"Testia"}]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	c := client.NewRestCountriesClient(time.Second)
	c.BaseURL = server.URL
	s := NewCountryStore(c)

	require.NoError(t, s.GetCountries(context.Background()))

	countries := s.Countries()
	require.Len(t, countries, 1)
	assert.Equal(t, int64(42), countries[0].Population)
	assert.Equal(t, "Testland", countries[0].Name.Common)
}

func TestCountryStore_WithRestCountriesClient_Failures(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"name":{"common":"Testland","official":"The Testland"},"population":42,"region":"Testia"}]`)
	}))
	defer good.Close()
	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	}))
	defer malformed.Close()
	trailing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[] <html>502 Bad Gateway</html>`)
	}))
	defer trailing.Close()
	refused := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	refusedURL := refused.URL
	refused.Close()

	c := client.NewRestCountriesClient(time.Second)
	c.BaseURL = good.URL
	s := NewCountryStore(c)
	require.NoError(t, s.GetCountries(context.Background()))
	before := s.Countries()

	testCases := []struct {
		name string
		url  string
		op   string
	}{
		{"connection refused", refusedURL, client.OpRequest},
		{"malformed body", malformed.URL, client.OpDecode},
		{"garbage after the array", trailing.URL, client.OpDecode},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c.BaseURL = tc.url
			err := s.GetCountries(context.Background())

			var fetchErr *client.FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, tc.op, fetchErr.Op)
			assert.Equal(t, before, s.Countries())
		})
	}
}
