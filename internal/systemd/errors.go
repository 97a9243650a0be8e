package systemd

import "errors"

// Sentinel errors for systemctl interaction. Callers match with errors.Is.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrExecution        = errors.New("failed to execute systemctl")
	ErrTimeout          = errors.New("operation timed out")
	ErrNotFound         = errors.New("service not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrParse            = errors.New("unexpected systemctl output")
	ErrAlreadyRunning   = errors.New("service already running")
	ErrAlreadyStopped   = errors.New("service already stopped")
)
