// Package analyzer runs profile analysis jobs.
//
// A Runner performs one job for one session: it fetches the profile,
// downloads the profile picture, up to three stories and the most recent
// posts, computes engagement analytics and records the outcome on the
// session. Progress is published after every post so clients polling the
// session can render it.
//
// Service is what the HTTP API and the CLI talk to. It maps a profile URL
// to a session, serves finished sessions from cache and queues at most one
// job per session on a worker pool.
//
// Usage:
//
//	runner := analyzer.NewRunner(store, client, media, analyzer.Options{
//	    Pacer: ratelimit.NewJitter(1500*time.Millisecond, 3*time.Second),
//	}, log)
//	svc := analyzer.NewService(store, runner, pool, log)
//	res, err := svc.Analyze(ctx, "https://instagram.com/alice/", "")
package analyzer
