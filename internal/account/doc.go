// Package account owns the local account context: the SQLite database and
// its repositories, the blob directory, the long-term secret key, the
// ongoing-operation slot and the background housekeeping scheduler.
//
// Typical use:
//
//	acct, err := account.Open(ctx, cfg, logger)
//	if err != nil { ... }
//	defer acct.Close()
//
//	if err := acct.Configure(ctx, "alice@example.org"); err != nil { ... }
//	acct.StartIO(ctx)
//
// An Account is safe for concurrent use.
package account
