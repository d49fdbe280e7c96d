// Package instagram is the upstream collaborator used by analysis jobs.
//
// The Client fetches profile metadata, paged timeline media and active
// stories, and downloads raw media bytes. Every failure is returned as a
// typed *errors.Error so callers can tell not-found, auth, rate limiting and
// transient network failures apart:
//
//	client := instagram.NewClient(30*time.Second, log)
//	client.SetLimiter(ratelimit.PerMinute(60))
//	user, err := client.FetchProfile(ctx, "natgeo")
//	if errors.Is(err, errors.ErrorTypeRateLimit) {
//		// tell the user to come back later
//	}
package instagram
