// Package logging builds the process slog.Logger from configuration: a
// colourised text handler for terminals or slog's JSON handler.
package logging
