//go:build !debug_mutex

package utils

import "sync"

type plainMutex struct {
	sync.RWMutex
}

// NewRWMutex returns the production mutex. Build with -tags debug_mutex to
// get the stack-tracking variant instead.
func NewRWMutex() RWMutex {
	return &plainMutex{}
}
