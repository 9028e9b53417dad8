package common

// DBFileBackupName is the fixed name under which the database snapshot is
// staged and transferred.
const DBFileBackupName = "backup.db"

// QuarantineSuffix is appended to the received database snapshot while it is
// written into the blob directory. Ordinary blob names never carry it.
const QuarantineSuffix = ".SPECIAL"

// BackupQRScheme prefixes backup capability payloads.
const BackupQRScheme = "KLBACKUP:"
