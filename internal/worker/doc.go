// Package worker provides the bounded goroutine pool that runs profile
// analysis jobs in the background.
package worker
