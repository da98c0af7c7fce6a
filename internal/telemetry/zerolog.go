package telemetry

import "github.com/rs/zerolog"

// WrapZerolog adapts a zerolog logger to the Logger interface used across
// engine components.
func WrapZerolog(logger zerolog.Logger) Logger {
	return &zerologAdapter{logger: logger}
}

type zerologAdapter struct {
	logger zerolog.Logger
}

func (z *zerologAdapter) Printf(format string, args ...any) {
	if z == nil {
		return
	}
	z.logger.Info().Msgf(format, args...)
}
