//go:build !linux

package core

import "sync/atomic"

// Platforms without a cheap gettid get process-unique synthetic ids. They
// are only ever compared against each other, so uniqueness is all the
// scheduler needs.
var nextSyntheticThreadID atomic.Int64

func osThreadID() int64 {
	return nextSyntheticThreadID.Add(1)
}
