package config

import "time"

// Database Timeouts
const (
	// DefaultDBTimeout is how long opening a tree waits for another process
	// holding its file lock
	DefaultDBTimeout = 5 * time.Second
)

// Watch Intervals
const (
	// WatchSettleDelay is the quiet period after a cache file event before the
	// file is applied. Extractors write through a rename, but editors saving
	// by hand may emit several writes in a row.
	WatchSettleDelay = 250 * time.Millisecond
)

// Shutdown Timeouts
const (
	// ShutdownTimeout bounds the whole cleanup of a CLI run
	ShutdownTimeout = 15 * time.Second

	// ShutdownHandlerTimeout is the default budget of one cleanup step
	ShutdownHandlerTimeout = 5 * time.Second
)
