// Package limits holds the spend and load limits applied to proxied
// traffic.
//
//   - budget: daily USD spend tracking with an alert threshold
//   - concurrency: per-provider in-flight request caps
//
// Both are consulted during provider selection: an exhausted budget
// fails selection before any request is sent, and a saturated provider
// is ranked behind providers with free slots.
package limits
