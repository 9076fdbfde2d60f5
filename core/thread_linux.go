//go:build linux

package core

import "golang.org/x/sys/unix"

// osThreadID returns the kernel thread id of the calling thread. Callers
// must already be locked to their OS thread for the value to stay valid.
func osThreadID() int64 {
	return int64(unix.Gettid())
}
