// Package database provides the SQLite database used by the CEC service.
//
// The service stores discovery data only: which logical devices have been
// seen on the bus and at which physical address (see package busmonitor).
// Routing state is never persisted.
//
// This package manages:
//   - Connection with WAL mode so reads do not block the monitor's writes
//   - Versioned, additive schema migrations read from an fs.FS
//   - Health checks for the /health endpoint
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
