package lib

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const (
	LogTimeFormat = "2006-01-02T15:04:05.000"
)

// consoleWriter logs to stderr so reports written to stdout stay clean.
// The "auto" format is pretty on a terminal and json lines otherwise; any
// format other than "pretty" or "auto" is json lines.
func consoleWriter(format string) io.Writer {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	switch format {
	case "pretty":
	case "auto":
		if !isTerminal {
			return os.Stderr
		}
	default:
		return os.Stderr
	}
	if runtime.GOOS == "windows" {
		return zerolog.ConsoleWriter{Out: colorable.NewColorableStderr(), TimeFormat: LogTimeFormat}
	}
	return zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !isTerminal, TimeFormat: LogTimeFormat}
}

// ParseLogLevel maps a level name to a zerolog level, defaulting to info.
func ParseLogLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

func ZeroConsoleLog(level zerolog.Level, format string) {
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(consoleWriter(format)).With().Timestamp().Logger()
}

// ZeroConsoleAndFileLog logs to the console and appends json lines to filename.
func ZeroConsoleAndFileLog(filename string, level zerolog.Level, format string) error {
	zerolog.SetGlobalLevel(level)

	flags := os.O_WRONLY | os.O_APPEND
	if !LocalFileExists(filename) {
		flags |= os.O_CREATE
	}
	logFile, err := os.OpenFile(filename, flags, 0o666)
	if err != nil {
		ZeroConsoleLog(level, format)
		return fmt.Errorf("opening log file: %w", err)
	}

	mw := io.MultiWriter(logFile, consoleWriter(format))
	log.Logger = zerolog.New(mw).With().Timestamp().Logger()
	return nil
}
