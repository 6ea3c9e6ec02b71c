// Package logging configures the logrus loggers used by every component:
// console output plus an optional rotated log file, each with its own
// minimum level.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects levels and the log file.
type Options struct {
	Level        string
	ConsoleLevel string
	FileLevel    string
	File         string
	MaxSizeMB    int
	MaxBackups   int
}

var (
	mu   sync.Mutex
	base = newBase()
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// For returns the logger of a component.
func For(component string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	return base.WithField("component", component)
}

// Setup reconfigures the shared logger. The returned closer flushes and
// closes the log file, if any.
func Setup(opts Options) (io.Closer, error) {
	level, err := parseLevel(opts.Level, logrus.InfoLevel)
	if err != nil {
		return nil, err
	}
	consoleMin, err := parseLevel(opts.ConsoleLevel, level)
	if err != nil {
		return nil, err
	}
	fileMin, err := parseLevel(opts.FileLevel, level)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()

	base.SetLevel(level)
	base.SetOutput(io.Discard)
	base.ReplaceHooks(make(logrus.LevelHooks))
	base.AddHook(&writerHook{Writer: os.Stdout, LogLevels: levelsUpTo(consoleMin)})

	if opts.File != "" {
		logFile := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		base.AddHook(&writerHook{Writer: logFile, LogLevels: levelsUpTo(fileMin)})
		return logFile, nil
	}
	return nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Discard silences all logging; used by tests.
func Discard() {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(io.Discard)
	base.ReplaceHooks(make(logrus.LevelHooks))
}

// writerHook writes entries of the selected levels to Writer.
type writerHook struct {
	Writer    io.Writer
	LogLevels []logrus.Level
}

func (h *writerHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	_, err = h.Writer.Write([]byte(line))
	return err
}

func (h *writerHook) Levels() []logrus.Level {
	return h.LogLevels
}

func levelsUpTo(min logrus.Level) []logrus.Level {
	levels := []logrus.Level{}
	for _, l := range logrus.AllLevels {
		if l <= min {
			levels = append(levels, l)
		}
	}
	return levels
}

func parseLevel(s string, def logrus.Level) (logrus.Level, error) {
	if s == "" {
		return def, nil
	}
	l, err := logrus.ParseLevel(s)
	if err != nil {
		return def, fmt.Errorf("logging: %w", err)
	}
	return l, nil
}
