package monitoring

import "log"

// Logf is the diagnostic logger the pipeline stages report drops and
// flush failures through. It defaults to log.Printf; tests swap it out
// to capture or mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
