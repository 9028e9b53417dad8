// Package entries provides persistence for account entries (notes, logins
// and media references) on top of a minimal DB interface.
//
// The package exposes a Repository interface and a SQLite implementation.
// All methods accept a context and never hold state beyond the DBTX handle,
// so a repository can be bound to *sql.DB, *sql.Conn or *sql.Tx alike.
package entries
