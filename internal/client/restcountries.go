package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"

	"country-store/internal/domain"
	"country-store/internal/httpclient"
)

const (
	defaultBaseURL = "https://restcountries.com/v3.1"
	allPath        = "/all"
	// Fields is the fixed field selection sent with every listing request.
	Fields        = "name,flag,population,region"
	clientTimeout = 10 * time.Second
)

// Fetch failure stages reported in FetchError.Op.
const (
	OpRequest = "request"
	OpStatus  = "status"
	OpDecode  = "decode"
)

// FetchError is the single failure kind of the client. It covers transport
// errors, non-2xx answers and undecodable bodies alike.
type FetchError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch countries (%s %s): status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch countries (%s %s): %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Getter is the HTTP capability the client relies on.
type Getter interface {
	Get(ctx context.Context, url string, out interface{}) error
}

// RestCountriesClient interacts with the REST Countries API.
type RestCountriesClient struct {
	http    Getter
	BaseURL string // overridable for tests
}

// NewRestCountriesClient creates a new client for the REST Countries API. A
// non-positive timeout uses the package default.
func NewRestCountriesClient(timeout time.Duration) *RestCountriesClient {
	if timeout <= 0 {
		timeout = clientTimeout
	}
	return &RestCountriesClient{
		http:    httpclient.New(timeout),
		BaseURL: defaultBaseURL,
	}
}

// URL returns the listing endpoint, including the fixed field selection.
func (c *RestCountriesClient) URL() string {
	return c.BaseURL + allPath + "?fields=" + Fields
}

// FetchCountries retrieves the full country listing. Every failure is a
// *FetchError.
func (c *RestCountriesClient) FetchCountries(ctx context.Context) ([]domain.Country, error) {
	url := c.URL()
	log.WithField("url", url).Debug("fetching countries")

	var countries []domain.Country
	if err := c.http.Get(ctx, url, &countries); err != nil {
		return nil, classify(url, err)
	}
	if countries == nil {
		// A literal JSON null decodes without error.
		countries = []domain.Country{}
	}

	log.WithField("count", len(countries)).Debug("decoded countries")
	return countries, nil
}

func classify(url string, err error) *FetchError {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return &FetchError{Op: OpStatus, URL: url, StatusCode: statusErr.StatusCode, Err: err}
	}
	var decodeErr *httpclient.DecodeError
	if errors.As(err, &decodeErr) {
		return &FetchError{Op: OpDecode, URL: url, Err: err}
	}
	return &FetchError{Op: OpRequest, URL: url, Err: err}
}
