// Package ratelimit paces calls to Instagram.
//
// TokenBucket caps the request rate of the shared upstream client, and
// Jitter inserts a randomized pause between items of a single job.
package ratelimit
