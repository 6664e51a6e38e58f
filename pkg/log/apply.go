package log

import "fmt"

// Config declaratively describes how to build a Logger, used by command-line
// entrypoints that accept --log-level/--log-format flags.
type Config struct {
	Level  string
	Format string // "json" or "text"
	Output string // "console", "" defaults to console
}

// ApplyConfig builds a Logger from a declarative Config.
func ApplyConfig(cfg Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var formatter Formatter
	switch cfg.Format {
	case "text", "":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return NewLogger(
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(NewConsoleOutput()),
	), nil
}

// ParseLevel parses a level name in lower, title or upper case (plus
// "warning") into a Level; an empty name yields InfoLevel.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "Debug", "DEBUG":
		return DebugLevel, nil
	case "info", "Info", "INFO", "":
		return InfoLevel, nil
	case "warn", "Warn", "WARN", "warning":
		return WarnLevel, nil
	case "error", "Error", "ERROR":
		return ErrorLevel, nil
	case "fatal", "Fatal", "FATAL":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}
