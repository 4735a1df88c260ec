// Package backup snapshots the ledger database and rotates old snapshots.
//
// Snapshots are named checkin_backup_YYYYMMDD_HHMMSS.db after the local
// time they were taken. After every successful snapshot only the newest
// MaxBackups files (by modification time) are kept.
package backup
