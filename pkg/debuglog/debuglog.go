// Package debuglog gates diagnostic output behind the AGENTIC_LEARNING_DEBUG
// environment variable. The auxiliary paths of the interception core must be
// silent by default; with the flag set they may narrate, without changing
// behavior.
package debuglog

import (
	"log"
	"os"
	"sync"
)

var (
	once    sync.Once
	enabled bool
)

// Enabled reports whether debug output is switched on. The environment is
// read once per process.
func Enabled() bool {
	once.Do(func() {
		v := os.Getenv("AGENTIC_LEARNING_DEBUG")
		enabled = v != "" && v != "0" && v != "false"
	})
	return enabled
}

// Printf logs through the standard logger when debug output is enabled.
func Printf(format string, args ...any) {
	if Enabled() {
		log.Printf(format, args...)
	}
}
