// Package concurrency enforces per-provider max_concurrent limits so a
// single overloaded provider cannot absorb every in-flight request.
package concurrency
