package core

import "fmt"

var sysLogger = GetLogger("system")

// assertionError is the panic value assertf raises. It exists so the fiber
// trampoline's panic isolation can tell a violated precondition apart from
// an ordinary panic in user code: the former is re-raised and takes the
// process down, the latter becomes an EXCEPT fiber.
type assertionError struct {
	msg string
}

func (e *assertionError) Error() string {
	return "core: assertion failed: " + e.msg
}

// assertf reports a violated precondition. The expression, message and a
// backtrace go to the system logger before the process is taken down with a
// panic. Nothing in the core recovers these - the trampoline re-raises them
// past its exception isolation - so a violation is fatal wherever it fires.
func assertf(cond bool, format string, args ...any) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	sysLogger.Error("assertion failed",
		F("message", msg),
		F("backtrace", Backtrace(1, backtraceDepth)),
	)
	panic(&assertionError{msg: msg})
}
