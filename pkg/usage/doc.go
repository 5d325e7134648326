// Package usage records per-attempt proxy usage for billing and audit.
//
// Every proxied attempt that transferred bytes produces one Record with
// the provider, byte count and cost. Records are append-only; the only
// deletion path is retention pruning via DeleteBefore, normally driven by
// a RetentionScheduler.
//
// SQLiteLedger uses the pure-Go modernc.org/sqlite driver and applies
// embedded schema migrations on open.
package usage
