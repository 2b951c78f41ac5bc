// Package database provides SQLite connectivity for the message history.
//
// This package manages:
//   - Database connection with optional WAL mode
//   - Schema migrations from an fs.FS (normally the embedded migrations package)
//   - Health checks
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: files are named
// YYYYMMDD_HHMMSS_description.up.sql and are applied once, in version order.
package database
