// Package storage keeps an append-only journal of notification deliveries.
//
// The journal is an operator audit trail. Nothing reads it back into the
// poll loop, so restarting the bot always starts from fresh in-memory state.
//
// Drivers:
//   - "file": JSON Lines file, no extra dependencies
//   - "sqlite": SQLite database via modernc.org/sqlite (pure Go)
package storage
