// Package log provides structured logging via zerolog: a global Logger,
// Init(Config) to configure level/format/output, and WithComponent/
// WithSubject/WithQueue/WithSessionID helpers for tagging child loggers with
// the field a given subsystem cares about.
package log
