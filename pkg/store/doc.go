// Package store persists provider definitions and routing rules.
//
// Two ConfigStore implementations are provided: MemoryStore for tests and
// single-process deployments without persistence, and SQLiteStore for
// durable configuration that survives restarts and API edits.
//
// On startup the configuration file is applied with Seed; the proxy
// service then reads providers and rules from the store and rebuilds its
// routing snapshot on every write.
package store
