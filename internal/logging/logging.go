// Package logging provides the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once

	// logDir is where rotated log files are written. Empty disables file output.
	logDir string
)

// Fields carries structured key/value pairs for a log line.
type Fields = logrus.Fields

// SetDir changes the directory for log files. It must be called before the
// first log line is written.
func SetDir(dir string) {
	logDir = dir
}

// Logger returns the shared logger, building it on first use.
func Logger() *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetLevel(levelFromEnv())

		logger.SetFormatter(&formatter.Formatter{
			NoColors:        os.Getenv("KESTREL_ENV") == "test",
			TimestampFormat: "02 Jan 06 - 15:04:05",
			HideKeys:        false,
			CallerFirst:     true,
			CustomCallerFormatter: func(f *runtime.Frame) string {
				s := strings.Split(f.Function, ".")
				funcName := s[len(s)-1]
				return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
			},
		})

		writers := []io.Writer{os.Stderr}

		if logDir != "" && os.Getenv("KESTREL_ENV") != "test" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   filepath.Join(logDir, fmt.Sprintf("kestrel-%s.log", time.Now().Format("2006-01-02"))),
				LocalTime:  true,
				Compress:   true,
				MaxSize:    100,
				MaxAge:     7,
				MaxBackups: 3,
			})
		}

		logger.SetOutput(io.MultiWriter(writers...))
		logger.SetReportCaller(true)
		logger.AddHook(callerHook{})
	})

	return logger
}

// callerHook replaces the caller logrus reports, which is always one of the
// helpers below, with the code that called the helper.
type callerHook struct{}

var pkgPath = reflect.TypeOf(callerHook{}).PkgPath()

// helperFuncs are the frames of this package skipped when looking for the
// caller.
var helperFuncs = map[string]bool{
	pkgPath + ".entry":           true,
	pkgPath + ".Debug":           true,
	pkgPath + ".Info":            true,
	pkgPath + ".Warn":            true,
	pkgPath + ".Error":           true,
	pkgPath + ".Fatal":           true,
	pkgPath + ".callerHook.Fire": true,
	pkgPath + ".externalCaller":  true,
}

func (callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (callerHook) Fire(e *logrus.Entry) error {
	if f, ok := externalCaller(); ok {
		e.Caller = &f
	}
	return nil
}

func externalCaller() (runtime.Frame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !helperFuncs[f.Function] && !strings.HasPrefix(f.Function, "github.com/sirupsen/logrus.") {
			return f, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

func levelFromEnv() logrus.Level {
	raw := os.Getenv("KESTREL_LOG_LEVEL")
	if raw == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func entry(fields Fields) *logrus.Entry {
	if fields == nil {
		fields = Fields{}
	}
	return Logger().WithFields(fields)
}

func Debug(fields Fields, msg string) {
	entry(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	entry(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	entry(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	entry(fields).Error(msg)
}

func Fatal(fields Fields, msg string) {
	entry(fields).Fatal(msg)
}
