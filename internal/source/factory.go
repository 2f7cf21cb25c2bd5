package source

import (
	"fmt"

	"funda-finder/internal/config"
	"funda-finder/internal/ratelimit"
)

// FromConfig builds the fallback chain named by cfg.Sources. All sources
// share one limiter so the upstream sees a single request rate.
func FromConfig(cfg config.ScrapingConfig) (*Composite, error) {
	limiter := ratelimit.NewLimiter(1, cfg.GetRequestInterval(), cfg.JitterRatio)

	var sources []Source
	for _, name := range cfg.Sources {
		switch name {
		case "api":
			sources = append(sources, NewAPISource(APIConfig{
				BaseURL:   cfg.APIBaseURL,
				Timeout:   cfg.GetTimeout(),
				UserAgent: cfg.UserAgent,
				Limiter:   limiter,
			}))
		case "html":
			var fetcher Fetcher = NewHTTPFetcher(cfg.GetTimeout())
			if cfg.UseBrowser {
				fetcher = NewBrowserFetcher(cfg.ChromePath, cfg.UserAgent, cfg.GetTimeout())
			}
			sources = append(sources, NewHTMLSource(HTMLConfig{
				BaseURL: cfg.HTMLBaseURL,
				Fetcher: fetcher,
				Limiter: limiter,
			}))
		default:
			return nil, fmt.Errorf("unknown listing source %q", name)
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no listing sources configured")
	}

	retry := RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.GetBaseDelay(),
		MaxDelay:    cfg.Retry.GetMaxDelay(),
		Jitter:      cfg.Retry.Jitter,
	}
	breaker := BreakerSettings{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		ResetTimeout:     cfg.CircuitBreaker.GetResetTimeout(),
	}
	return NewComposite(retry, breaker, sources...), nil
}
