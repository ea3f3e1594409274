package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Global logger instance
	Logger zerolog.Logger
)

// Options configures the global logger.
type Options struct {
	Level  string    // debug, info, warn, error; defaults to info
	Format string    // "console" or "json"; defaults to console
	File   string    // optional file mirrored alongside stdout
	Out    io.Writer // overrides stdout, used by tests
}

// Initialize sets up the global logger with appropriate configuration. The returned closer
// releases the log file, if any.
func Initialize(opts Options) (io.Closer, error) {
	// Set time format to be more human-readable
	zerolog.TimeFieldFormat = time.RFC3339

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var output io.Writer = out
	if !strings.EqualFold(opts.Format, "json") {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02 15:04:05",
			NoColor:    opts.Out != nil,
		}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file, err := FileWriter(opts.File)
		if err != nil {
			return nil, err
		}
		// The file receives raw JSON whatever the console format.
		output = zerolog.MultiLevelWriter(output, file)
		closer = file
	}

	// Setup logger
	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	// Replace standard log with zerolog
	log.Logger = Logger
	return closer, nil
}

// ParseLevel maps a level name to a zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter opens a log file for appending.
func FileWriter(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
