// Package database opens the hub's SQLite file and applies its schema
// migrations.
//
// The database only holds the audit trail; the reader list itself is kept
// in the INI settings file. Connections use WAL mode and a busy timeout,
// and the pool is limited to one connection because SQLite allows a
// single writer.
//
// Migrations are embedded SQL files named <version>_<name>.up.sql with a
// matching .down.sql. Applied versions are recorded in schema_migrations,
// so Migrate is safe to call on every start:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
