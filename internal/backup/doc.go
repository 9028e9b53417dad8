// Package backup moves a whole account between two devices.
//
// The providing device calls Prepare: it exports a sealed database snapshot
// into a staging directory, publishes it together with every file of the
// blob directory and returns a Provider whose QR code carries the transfer
// ticket. A background supervisor watches the transfer and settles on
// exactly one outcome.
//
// The receiving device scans the code and calls GetBackup, which fetches the
// files into its blob directory, imports the database and rolls everything
// back on failure.
package backup
