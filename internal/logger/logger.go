package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance. It discards everything until Init is called.
	Logger = zerolog.Nop()
)

// Init initializes the global logger writing to stdout
func Init(level string) {
	InitWithWriter(level, os.Stdout)
}

// InitWithWriter initializes the global logger with an explicit output
func InitWithWriter(level string, out io.Writer) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Pretty console logging in development
	if os.Getenv("ENV") == "development" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()

	Logger.Info().
		Str("level", logLevel.String()).
		Msg("logger initialized")
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithMeasurement returns a component logger scoped to one reading
func WithMeasurement(component, userID, measurementID string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("user_id", userID).
		Str("measurement_id", measurementID).
		Logger()
}
