package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// AsynqLogger adapts a zerolog logger to asynq.Logger.
type AsynqLogger struct {
	log zerolog.Logger
}

func NewAsynqLogger(l zerolog.Logger) *AsynqLogger {
	return &AsynqLogger{log: l}
}

func (l *AsynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l *AsynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l *AsynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l *AsynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }

// Fatal logs at error level. asynq calls it before exiting on its own.
func (l *AsynqLogger) Fatal(args ...interface{}) { l.log.Error().Bool("fatal", true).Msg(fmt.Sprint(args...)) }
