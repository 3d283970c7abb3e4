// Package stores provides persistence layer implementations for millrun.
// It includes SQLite-based storage with WAL mode and embedded migrations,
// and an in-memory store for tests and ephemeral runs. Both persist the
// engine snapshot atomically and keep an append-only log of engine events.
package stores
