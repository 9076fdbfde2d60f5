package core

import (
	"fmt"
	"runtime"
	"strings"
)

const backtraceDepth = 64

// Backtrace returns a human-readable stack trace of the calling goroutine,
// skipping the given number of frames and capped at depth frames. Only used
// on exception and fatal-assertion paths.
func Backtrace(skip, depth int) string {
	if depth <= 0 || depth > backtraceDepth {
		depth = backtraceDepth
	}
	pcs := make([]uintptr, depth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
