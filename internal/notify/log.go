package notify

import (
	"go.uber.org/zap"
)

// Logger writes notices to a zap logger.
type Logger struct {
	log *zap.Logger
}

func NewLogger(log *zap.Logger) *Logger {
	return &Logger{log: log.With(zap.String("layer", "notify"))}
}

func (l *Logger) Success(msg string) { l.log.Info("notice", zap.String("level", string(LevelSuccess)), zap.String("message", msg)) }
func (l *Logger) Info(msg string)    { l.log.Info("notice", zap.String("level", string(LevelInfo)), zap.String("message", msg)) }
func (l *Logger) Warning(msg string) { l.log.Warn("notice", zap.String("level", string(LevelWarning)), zap.String("message", msg)) }
func (l *Logger) Error(msg string)   { l.log.Error("notice", zap.String("level", string(LevelError)), zap.String("message", msg)) }
