package model

import (
	"errors"
)

var (
	// ErrRegistryUnavailable is returned when a service namespace can't be enumerated.
	// It is the only error, which aborts a whole dumpsys run.
	ErrRegistryUnavailable = errors.New("registry unavailable")
	ErrServiceNotFound     = errors.New("service not found")
	ErrDumpTimeout         = errors.New("dump timeout expired")
)
