package idtoken

import (
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Logger is the logging interface the validator and middleware write to.
// Adapters for logrus, zap, and zerolog are provided; the default is silent.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NoopLogger discards all log output. It is the default when no logger is
// configured.
type NoopLogger struct{}

func (l *NoopLogger) Debugf(format string, args ...any) {}
func (l *NoopLogger) Infof(format string, args ...any)  {}
func (l *NoopLogger) Warnf(format string, args ...any)  {}
func (l *NoopLogger) Errorf(format string, args ...any) {}

// NewLogrusLogger returns a Logger adapter for logrus.FieldLogger.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return &logrusLoggerAdapter{l}
}

type logrusLoggerAdapter struct{ l logrus.FieldLogger }

func (a *logrusLoggerAdapter) Debugf(format string, args ...any) { a.l.Debugf(format, args...) }
func (a *logrusLoggerAdapter) Infof(format string, args ...any)  { a.l.Infof(format, args...) }
func (a *logrusLoggerAdapter) Warnf(format string, args ...any)  { a.l.Warnf(format, args...) }
func (a *logrusLoggerAdapter) Errorf(format string, args ...any) { a.l.Errorf(format, args...) }

// NewZapLogger returns a Logger adapter for zap.SugaredLogger.
func NewZapLogger(l *zap.SugaredLogger) Logger {
	return &zapLoggerAdapter{l}
}

type zapLoggerAdapter struct{ l *zap.SugaredLogger }

func (a *zapLoggerAdapter) Debugf(format string, args ...any) { a.l.Debugf(format, args...) }
func (a *zapLoggerAdapter) Infof(format string, args ...any)  { a.l.Infof(format, args...) }
func (a *zapLoggerAdapter) Warnf(format string, args ...any)  { a.l.Warnf(format, args...) }
func (a *zapLoggerAdapter) Errorf(format string, args ...any) { a.l.Errorf(format, args...) }

// NewZerologLogger returns a Logger adapter for zerolog.Logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologLoggerAdapter{l}
}

type zerologLoggerAdapter struct{ l zerolog.Logger }

func (a *zerologLoggerAdapter) Debugf(format string, args ...any) {
	a.l.Debug().Msgf(format, args...)
}
func (a *zerologLoggerAdapter) Infof(format string, args ...any) {
	a.l.Info().Msgf(format, args...)
}
func (a *zerologLoggerAdapter) Warnf(format string, args ...any) {
	a.l.Warn().Msgf(format, args...)
}
func (a *zerologLoggerAdapter) Errorf(format string, args ...any) {
	a.l.Error().Msgf(format, args...)
}
