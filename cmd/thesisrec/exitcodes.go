package main

// Exit codes shared across commands.
const (
	ExitSuccess         = 0 // Success
	ExitError           = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError     = 2 // Configuration error (bad config file, missing credentials)
	ExitDataError       = 3 // Data or provider error (embedding service unavailable, missing index)
	ExitRebuildRequired = 4 // Incremental update refused; run a full rebuild
)
