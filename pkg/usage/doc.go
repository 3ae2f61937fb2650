// Package usage persists per-call token usage in a SQLite-backed ledger.
//
// The gateway records one row per successful backend call, best-effort: a
// failed ledger write is logged and never fails the caller's request.
package usage
