package application

import "log/slog"

// ResolveLogger guarantees a non-nil logger for the command/query packages.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
