// Package stores keeps the history of install and uninstall runs in SQLite.
//
// A run row is written when the engine starts installing or uninstalling and
// completed when it finishes; each executed or skipped action adds a step
// row. The schema is created by embedded golang-migrate migrations. Recorder
// turns engine events into rows and is meant to be subscribed to the
// telemetry event publisher.
package stores
