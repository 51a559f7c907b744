// Package logger configures the process-wide logrus logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetFormatter(&PlainFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	std.SetOutput(os.Stderr)
	std.SetLevel(logrus.InfoLevel)
}

// Options controls Setup.
type Options struct {
	Level string
	File  string
	Debug bool
}

// Setup applies level and output. When File is set, logs go to both stderr and the file.
func Setup(opts Options) (io.Closer, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = l
	}
	if opts.Debug {
		level = logrus.DebugLevel
	}
	std.SetLevel(level)

	if opts.File == "" {
		std.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	std.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return std.WithField("component", component)
}

var levelDesc = []string{"PANIC", "FATAL", "ERROR", "WARN", "INFO", "DEBUG", "TRACE"}

// PlainFormatter renders "LEVEL timestamp message key=value ...".
type PlainFormatter struct {
	TimestampFormat string
}

func (f *PlainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	level := "TRACE"
	if int(entry.Level) < len(levelDesc) {
		level = levelDesc[entry.Level]
	}
	fmt.Fprintf(&b, "%-5s %s %s", level, entry.Time.Format(f.TimestampFormat), entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
