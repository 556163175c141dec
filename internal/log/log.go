// Package log provides the structured logger shared by every fingerspell package.
package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger = logrus.New()
	once   sync.Once
)

// Fields is an alias so callers do not import logrus directly.
type Fields = logrus.Fields

// Options configures the logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Unknown values fall back to info.
	Level string
	// Dir, when set, receives a rotating app.log next to stderr output.
	Dir string
}

// Init configures the global logger. Only the first call has an effect.
func Init(opts Options) *logrus.Logger {
	once.Do(func() {
		lvl, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		logger.SetLevel(lvl)

		logger.SetFormatter(&formatter.Formatter{
			TimestampFormat: "02 Jan 06 - 15:04:05",
			HideKeys:        false,
			CallerFirst:     true,
			CustomCallerFormatter: func(f *runtime.Frame) string {
				s := strings.Split(f.Function, ".")
				return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, s[len(s)-1])
			},
		})

		writers := []io.Writer{os.Stderr}
		if opts.Dir != "" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, "app.log"),
				LocalTime:  true,
				Compress:   true,
				MaxSize:    20,
				MaxAge:     7,
				MaxBackups: 3,
			})
		}
		logger.SetOutput(io.MultiWriter(writers...))
		logger.SetReportCaller(true)
	})
	return logger
}

// L returns the global logger.
func L() *logrus.Logger {
	return logger
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Debug(fields Fields, msg string) {
	logger.WithFields(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	logger.WithFields(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	logger.WithFields(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	logger.WithFields(fields).Error(msg)
}

func Fatal(fields Fields, msg string) {
	logger.WithFields(fields).Fatal(msg)
}

// WithComponent returns an entry tagged with the component name.
func WithComponent(name string) *logrus.Entry {
	return logger.WithField("component", name)
}
