package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes to stdout and to a rotating file under the configured directory.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

func New(dir, level, format string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs folder failed: %w", err)
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "renewal-service.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 7,
		MaxAge:     30, // days
		Compress:   true,
	}

	l := logrus.New()
	l.SetLevel(lvl)
	l.SetOutput(io.MultiWriter(os.Stdout, file))
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}
	return &Logger{Logger: l, file: file}, nil
}

// Wrap adapts an existing logrus logger, typically a test logger.
func Wrap(l *logrus.Logger) *Logger {
	return &Logger{Logger: l}
}

func (l *Logger) Close() {
	if l.file == nil {
		return
	}
	_ = l.file.Close()
}
