// Package panics provides panic-safe goroutine spawning, grounded on
// the teacher's util/panics package. Per spec.md §7, nothing a remote
// peer sends may crash the node, so GoroutineWrapperFunc recovers and
// logs rather than exiting; Fatal is reserved for true startup failures
// (spec.md §7's "bind failure at startup" class).
package panics

import (
	"os"
	"runtime/debug"

	"github.com/ledgerd/ledgerd/logger"
)

// GoroutineWrapperFunc returns a launcher that runs f in a new
// goroutine, recovering and logging any panic instead of letting it
// bring down the process.
func GoroutineWrapperFunc(log *logger.Logger) func(func()) {
	return func(f func()) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("recovered from panic: %v\n%s", r, debug.Stack())
				}
			}()
			f()
		}()
	}
}

// Fatal logs reason as a fatal startup error and exits the process. It
// is reserved for spec.md §7's Fatal error class (e.g. a listener bind
// failure) and must never be reached from peer- or message-driven code.
func Fatal(log *logger.Logger, reason string) {
	log.Criticalf("fatal: %s", reason)
	os.Exit(1)
}
