// Package logging builds the process-wide slog handler from the logging
// configuration and installs it as the default logger.
package logging
