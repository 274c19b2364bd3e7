package liveness

import "errors"

var (
	ErrMonitorAlreadyRunning = errors.New("liveness monitor is already running")
	ErrMonitorNotRunning     = errors.New("liveness monitor is not running")
)
