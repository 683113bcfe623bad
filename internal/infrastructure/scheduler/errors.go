package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when the watcher configuration is unusable
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrAlreadyRunning is returned by Start on a running watcher
	ErrAlreadyRunning = errors.New("watcher already running")

	// ErrFileTooLarge marks inbox files above the size limit
	ErrFileTooLarge = errors.New("feed file exceeds size limit")
)
