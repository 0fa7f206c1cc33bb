// Package database provides SQLite connectivity for the bridge's local
// store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Additive-only schema migrations from an embedded filesystem
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Performance Characteristics:
//   - WAL mode allows concurrent reads during writes
//   - Busy timeout prevents lock contention errors
//   - A single pooled connection matches SQLite's single-writer model
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS()); err != nil {
//	    log.Fatal(err)
//	}
package database
