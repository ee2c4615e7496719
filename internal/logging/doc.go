// Package logging provides a simple leveled logging interface for the
// render engine.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (skipped frames, decoder retries)
//   - INFO: General operational messages
//   - WARN: Warning conditions (hardware fallback, dropped frames)
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to debug with DEBUG=true. Components that log often obtain a
// prefixed [Logger] with [For].
package logging
