package main

import (
	"io"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// logLevel maps the --log-level flag onto a glog level name. Unknown values
// fall back to warn so diagnostics stay off stdout-bound output.
func logLevel(flag string) string {
	switch level := strings.ToUpper(strings.TrimSpace(flag)); level {
	case glog.Trace, glog.Debug, glog.Info, glog.Warn, glog.Error:
		return level
	default:
		return glog.Warn
	}
}

// newLogger builds the console logger; it doubles as the provider for the
// per-component loggers.
func newLogger(w io.Writer, level string) *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithWriter(w),
		glog.WithLevel(logLevel(level)),
		glog.WithLoggerTypeConsole(),
		glog.WithName("broker-probe"),
		glog.WithFatalBehavior(glog.FatalBehaviorLogOnly),
	)
}
