package logging

import (
	"fmt"
	"sync"
)

var (
	instance *Logger
	mu       sync.Mutex
)

// InitLogger initializes the global logger instance. Calling it again
// replaces the previous instance, which is only expected in tests.
func InitLogger(config *LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	logger, err := NewLogger(config)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	instance = logger
	return nil
}

// GetGlobalLogger returns the logger created by InitLogger.
// It panics if InitLogger has not been called.
func GetGlobalLogger() *Logger {
	mu.Lock()
	defer mu.Unlock()

	if instance == nil {
		panic("logger not initialized - call logging.InitLogger() first")
	}

	return instance
}
