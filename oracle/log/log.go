package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	customLog logger
	mu        sync.RWMutex
)

type logger struct {
	z   zerolog.Logger
	dir string
}

func init() {
	InitLogger()
}

// InitLogger resets logging to a console writer on stdout.
func InitLogger() {
	setOutput(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000", NoColor: true})
}

// ResetLogger redirects all logs to a per-process file under <oracleHome>/logs.
func ResetLogger(oracleHome string) {
	if oracleHome == "" {
		osHome, err := os.UserHomeDir()
		if err != nil {
			Fatalf("Failed to get user home directory: %v", err)
		}
		oracleHome = filepath.Join(osHome, ".oracled")
	}

	dir := filepath.Join(oracleHome, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		Fatalf("Failed to create log directory %s: %v", dir, err)
	}

	name := fmt.Sprintf("%s.%d.log", filepath.Base(os.Args[0]), os.Getpid())
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		Fatalf("Failed to create log file: %v", err)
	}

	Infof("From now on, all logs will be written to %s", path)

	setOutput(file)
	mu.Lock()
	customLog.dir = dir
	mu.Unlock()
}

// SetOutput sends logs to w; tests use it to capture output.
func SetOutput(w io.Writer) {
	setOutput(w)
}

// SetLevel accepts debug, info, warn or error. Unknown levels fall back to info.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Dir returns the log directory set by ResetLogger, if any.
func Dir() string {
	mu.RLock()
	defer mu.RUnlock()
	return customLog.dir
}

func setOutput(w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	mu.Lock()
	customLog.z = zerolog.New(w).With().Timestamp().Logger()
	mu.Unlock()
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := customLog.z
	return &l
}

func Debug(v ...any) {
	current().Debug().Msg(fmt.Sprint(v...))
}

func Debugf(format string, v ...any) {
	current().Debug().Msgf(format, v...)
}

func Info(v ...any) {
	current().Info().Msg(fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	current().Info().Msgf(format, v...)
}

func Warn(v ...any) {
	current().Warn().Msg(fmt.Sprint(v...))
}

func Warnf(format string, v ...any) {
	current().Warn().Msgf(format, v...)
}

func Error(v ...any) {
	current().Error().Msg(fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	current().Error().Msgf(format, v...)
}

func Fatal(v ...any) {
	current().Fatal().Msg(fmt.Sprint(v...))
}

func Fatalf(format string, v ...any) {
	current().Fatal().Msgf(format, v...)
}

// With returns a zerolog logger carrying the given key/value pair, for call
// sites that want structured fields instead of formatted messages.
func With(key string, value any) zerolog.Logger {
	return current().With().Interface(key, value).Logger()
}
