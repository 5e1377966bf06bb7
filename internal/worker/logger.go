package worker

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// temporalLogger adapts zap to the Temporal SDK's key/value logger.
type temporalLogger struct {
	s *zap.SugaredLogger
}

var (
	_ log.Logger     = (*temporalLogger)(nil)
	_ log.WithLogger = (*temporalLogger)(nil)
)

func newTemporalLogger(l *zap.Logger) *temporalLogger {
	return &temporalLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar().With("component", "temporal")}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) { l.s.Debugw(msg, keyvals...) }
func (l *temporalLogger) Info(msg string, keyvals ...interface{})  { l.s.Infow(msg, keyvals...) }
func (l *temporalLogger) Warn(msg string, keyvals ...interface{})  { l.s.Warnw(msg, keyvals...) }
func (l *temporalLogger) Error(msg string, keyvals ...interface{}) { l.s.Errorw(msg, keyvals...) }

func (l *temporalLogger) With(keyvals ...interface{}) log.Logger {
	return &temporalLogger{s: l.s.With(keyvals...)}
}
