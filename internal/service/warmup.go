package service

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
)

// Refresher is anything that can (re)populate itself, such as the store.
type Refresher interface {
	GetCountries(ctx context.Context) error
}

// Warmup populates r, retrying with exponential backoff until it succeeds,
// ctx is done, or maxElapsed has passed. A non-positive maxElapsed retries
// until ctx is done. The last fetch error is returned on give-up.
func Warmup(ctx context.Context, r Refresher, maxElapsed time.Duration) error {
	attempt := 0
	op := func() error {
		attempt++
		err := r.GetCountries(ctx)
		if err != nil {
			log.WithError(err).Warnf("warmup attempt %d failed, retrying", attempt)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		log.WithError(err).Errorf("warmup gave up after %d attempts", attempt)
		return err
	}

	log.Infof("warmup succeeded after %d attempts", attempt)
	return nil
}
