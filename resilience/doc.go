// Package resilience hardens calls made by probe adapters.
//
// The inspection engine has no timeouts of its own: a hung probe
// blocks its worker until the adapter gives up. This package supplies the
// patterns an adapter uses to give up in a controlled way:
//
//   - Retry: re-attempts failed calls with exponential, linear or constant
//     backoff.
//
//   - Rate Limiter: throttles calls against the inspected databases, backed
//     by golang.org/x/time/rate.
//
//   - Timeout: bounds every single attempt.
//
// # Usage
//
//	exec := resilience.NewExecutor(
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
//	        MaxAttempts:  3,
//	        InitialDelay: 200 * time.Millisecond,
//	    })),
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
//	        Rate:        20,
//	        Burst:       5,
//	        WaitOnLimit: true,
//	    })),
//	    resilience.WithTimeout(10*time.Second),
//	)
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return client.Ping(ctx)
//	})
package resilience
