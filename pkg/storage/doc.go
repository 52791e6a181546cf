// Package storage writes downloaded media and recovery files without ever
// leaving a partially written file at the destination path.
//
// Data is written to a hidden temporary file in the destination directory,
// synced and renamed into place. Readers either see the previous file or
// the complete new one.
package storage
