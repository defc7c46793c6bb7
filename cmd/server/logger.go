package main

import (
	"github.com/rs/zerolog"
)

// zerologAdapter satisfies the Logger interface of the shared packages.
type zerologAdapter struct {
	logger zerolog.Logger
}

func sharedLogger(base zerolog.Logger, component string) *zerologAdapter {
	return &zerologAdapter{logger: base.With().Str("component", component).Logger()}
}

func (a *zerologAdapter) Info(msg string, fields ...interface{}) {
	a.logger.Info().Fields(fields).Msg(msg)
}

func (a *zerologAdapter) Error(msg string, fields ...interface{}) {
	a.logger.Error().Fields(fields).Msg(msg)
}

func (a *zerologAdapter) Debug(msg string, fields ...interface{}) {
	a.logger.Debug().Fields(fields).Msg(msg)
}
