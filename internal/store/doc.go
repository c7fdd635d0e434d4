// Package store provides SQLite-backed persistence for flow configurations,
// channel bindings, and thread sessions. All three entity kinds live
// exclusively here; callers hold no authoritative in-process state.
package store
