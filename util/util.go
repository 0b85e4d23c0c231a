package util

import "log"

// Logging is a clumsy switch that affects what Logf does.
//
// If Logging is true, then Logf calls log.Printf.
var Logging = false

// Logf is a silly utility function that calls log.Printf if Logging
// is true.
//
// The library uses Logf to report things that are ignored by design:
// configuration parse failures, dispatches dropped after a dispatcher
// is closed, and timer lifecycle events.
func Logf(format string, args ...interface{}) {
	if !Logging {
		return
	}
	log.Printf(format, args...)
}
