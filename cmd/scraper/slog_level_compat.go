//go:build !go1.22

package main

import "log/slog"

// slog.SetLogLoggerLevel does not exist before Go 1.22; the bridged
// log-package level is fixed at Info on older toolchains.
func setLogLoggerLevel(slog.Level) {}
