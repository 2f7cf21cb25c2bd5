package source

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Composite tries each source in order and returns the first success.
// Every source call goes through the retry policy and the source's own
// circuit breaker.
type Composite struct {
	sources  []Source
	breakers []*CircuitBreaker
	retry    RetryPolicy
}

// BreakerSettings configures the per-source circuit breakers of a Composite
type BreakerSettings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// NewComposite builds a fallback chain over sources, primary first
func NewComposite(retry RetryPolicy, breaker BreakerSettings, sources ...Source) *Composite {
	c := &Composite{
		sources:  sources,
		breakers: make([]*CircuitBreaker, len(sources)),
		retry:    retry,
	}
	for i, s := range sources {
		c.breakers[i] = NewCircuitBreaker(s.Name(), breaker.FailureThreshold, breaker.ResetTimeout)
	}
	return c
}

func (c *Composite) Name() string {
	return "composite"
}

// Search returns listings from the first source that succeeds. When all fail
// the error is an *ExhaustedError matching ErrAllSourcesExhausted.
func (c *Composite) Search(ctx context.Context, filters Filters) ([]RawListing, error) {
	var errs []error
	for i, src := range c.sources {
		cb := c.breakers[i]
		if !cb.CanProceed() {
			errs = append(errs, fmt.Errorf("%s: circuit breaker open", src.Name()))
			continue
		}

		var listings []RawListing
		err := c.retry.Do(ctx, src.Name(), func(ctx context.Context) error {
			var err error
			listings, err = src.Search(ctx, filters)
			return err
		})
		if err == nil {
			cb.RecordSuccess()
			log.Printf("Source: %s returned %d listings for %s/%s", src.Name(), len(listings), filters.City, filters.ListingType)
			return listings, nil
		}

		cb.RecordFailure()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("Source: %s failed for %s/%s: %v", src.Name(), filters.City, filters.ListingType, err)
		errs = append(errs, err)
	}
	return nil, &ExhaustedError{Errs: errs}
}
