// Package corelog is the ambient logging convention used across this
// module: level-prefixed lines through the standard library's log
// package, with debug output gated behind a package-level switch rather
// than a log-level threshold on a structured logger.
package corelog

import "log"

// DebugEnabled controls whether Debugf produces output. Set by the
// embedding binary (flag or environment variable); the core library
// never flips it itself.
var DebugEnabled bool

func Infof(format string, args ...any)  { log.Printf("INFO: "+format, args...) }
func Warnf(format string, args ...any)  { log.Printf("WARN: "+format, args...) }
func Errorf(format string, args ...any) { log.Printf("ERROR: "+format, args...) }

func Debugf(format string, args ...any) {
	if DebugEnabled {
		log.Printf("DEBUG: "+format, args...)
	}
}
