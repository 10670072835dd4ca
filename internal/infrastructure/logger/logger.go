package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

var levelColors = []struct {
	plain   []byte
	colored []byte
}{
	{[]byte("level=DEBUG"), []byte(colorCyan + "level=DEBUG" + colorReset)},
	{[]byte("level=INFO"), []byte(colorGreen + "level=INFO" + colorReset)},
	{[]byte("level=WARN"), []byte(colorYellow + "level=WARN" + colorReset)},
	{[]byte("level=ERROR"), []byte(colorRed + "level=ERROR" + colorReset)},
}

// colorWriter wraps an io.Writer and adds color codes around the level string
// written by slog.TextHandler.
type colorWriter struct {
	writer io.Writer
}

func (cw *colorWriter) Write(p []byte) (int, error) {
	out := p
	for _, lc := range levelColors {
		out = bytes.ReplaceAll(out, lc.plain, lc.colored)
	}
	if _, err := cw.writer.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// isTerminal checks if the writer is a character device.
func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// New builds a structured slog logger writing to stdout, honoring the
// configured level and environment.
func New(appName, level, environment string) *slog.Logger {
	return NewWithWriter(os.Stdout, appName, level, environment)
}

// NewWithWriter is New with an explicit destination.
// Development environments (local, dev, development) get text output, colored
// when w is a terminal; every other environment gets JSON.
func NewWithWriter(w io.Writer, appName, level, environment string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "local", "dev", "development":
		if isTerminal(w) {
			w = &colorWriter{writer: w}
		}
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("app", appName)
}

// ForStage scopes a logger to one pipeline stage run.
func ForStage(log *slog.Logger, stage, tier, runID string) *slog.Logger {
	return log.With("stage", stage, "tier", tier, "run_id", runID)
}

func parseLevel(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
