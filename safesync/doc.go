// Package safesync synchronizes password databases with a storage provider.
//
// A Syncer serializes a snapshot of the database tree with its minimal
// attachment and icon pools, writes it through a StorageProvider and keeps
// the last synced copy in the offline cache. Pushes of an unchanged tree are
// detected by content ID and never reach the provider. Pulls fall back to the
// cached copy when the provider is offline.
//
// A Scheduler pushes local database files on cron schedules.
package safesync
