// Package database provides SQLite connectivity for the pager bridge.
//
// This package manages:
//   - Database connection with WAL mode for concurrent readers
//   - A single writer connection so upserts are serialised by SQLite itself
//   - Additive schema migrations from an fs.FS
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600; it holds upstream API keys
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
