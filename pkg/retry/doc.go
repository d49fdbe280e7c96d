// Package retry provides bounded retries with exponential backoff for
// transient upstream failures.
//
//	data, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
//		return client.Download(ctx, url, maxBytes)
//	}, retry.FromConfig(cfg.Retry, log))
//
// Typed errors from iganalyzer/pkg/errors decide retryability: network and
// server errors are retried, rate limits and not-found are returned at once.
// Waits honor context cancellation.
package retry
