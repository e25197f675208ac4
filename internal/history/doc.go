// Package history persists one row per flasher run in SQLite.
//
// Recorder is a flash.Sink that writes a row when a run starts and
// completes it when the run finishes. Repository serves the rows back to
// the HTTP API.
package history
