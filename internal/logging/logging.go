package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the global zerolog logger with the given level and
// output format. Unknown levels fall back to info.
func InitLogger(level string, human bool) {
	InitLoggerTo(os.Stdout, level, human)
}

// InitLoggerTo is InitLogger writing to out.
func InitLoggerTo(out io.Writer, level string, human bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(out).With().Timestamp().Logger()
	if human {
		log.Logger = base.Output(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339Nano,
		}) // select output format.
	} else {
		log.Logger = base // use JSON logger.
	}

	zerolog.SetGlobalLevel(ParseLevel(level))
}

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}

	return lvl
}

// LogRequest logs a received transport frame with structured fields.
func LogRequest(clientIP string, requestLen, activeConns int) {
	log.Info().
		Str("event", "request_received").
		Str("client_ip", clientIP).
		Int("request_len", requestLen).
		Int("active_connections", activeConns).
		Msg("received request")
}

// LogResponse logs a sent transport frame with structured fields.
func LogResponse(clientIP string, results, responseLen int, duration time.Duration, activeConns int) {
	log.Info().
		Str("event", "response_sent").
		Str("client_ip", clientIP).
		Int("results", results).
		Int("response_len", responseLen).
		Dur("duration", duration).
		Int("active_connections", activeConns).
		Msg("sent response")
}
