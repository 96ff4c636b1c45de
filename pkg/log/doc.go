// Package log provides peleka's structured logging, a thin zerolog wrapper
// that configures the global Logger from a Config and hands out per-host
// child loggers so a multi-server run's output can be filtered by host.
package log
