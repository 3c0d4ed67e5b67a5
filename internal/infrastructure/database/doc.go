// Package database provides the SQLite connection behind the history
// journal.
//
// The connection runs in WAL mode with a busy timeout and a single pooled
// connection. Schema changes are additive migrations read from an fs.FS
// passed by the caller, normally the embedded migrations package:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. New columns must be nullable or carry a default.
package database
