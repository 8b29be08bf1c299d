package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

var registerHook sync.Once

// ConfigureLogging applies c to the standard logrus logger.
func ConfigureLogging(c Config) error {
	if err := validate(c); err != nil {
		return err
	}
	level, _ := parseLogLevel(c.Level)

	var out io.Writer = os.Stdout
	if c.File.Enabled {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   c.File.LogFile,
			MaxSize:    c.File.MaxSizeMb,
			MaxBackups: c.File.MaxBackups,
			MaxAge:     c.File.MaxAgeDays,
			Compress:   c.File.Compress,
		})
	}

	logrus.SetLevel(level)
	logrus.SetOutput(out)
	logrus.SetFormatter(newFormatter(c.Format))

	if c.Metrics {
		var err error
		registerHook.Do(func() {
			var hook *promrus.PrometheusHook
			hook, err = promrus.NewPrometheusHook()
			if err == nil {
				logrus.AddHook(hook)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// MustConfigureLogging is ConfigureLogging that exits the process on failure.
func MustConfigureLogging(c Config) {
	if err := ConfigureLogging(c); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error initializing logging: "+err.Error())
		os.Exit(1)
	}
}

// ConfigureCommandLineLogging sets up logging for short lived commands, printing only the message.
func ConfigureCommandLineLogging() {
	logrus.SetFormatter(&CommandLineFormatter{})
	logrus.SetOutput(os.Stdout)
}

func newFormatter(format string) logrus.Formatter {
	switch format {
	case FormatJson:
		return &logrus.JSONFormatter{TimestampFormat: RFC3339Milli}
	case FormatColourful:
		return &logrus.TextFormatter{ForceColors: true, FullTimestamp: true, TimestampFormat: RFC3339Milli}
	default:
		return &logrus.TextFormatter{DisableColors: true, FullTimestamp: true, TimestampFormat: RFC3339Milli}
	}
}

type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("%s\n", entry.Message)), nil
}

var NullLogger = &logrus.Logger{
	Out:       io.Discard,
	Formatter: new(logrus.TextFormatter),
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.PanicLevel,
}
