package log

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Logger interface {
	Trace(message string, opts ...interface{})
	Debug(message string, opts ...interface{})
	Info(message string, opts ...interface{})
	Warning(message string, opts ...interface{})
	Error(message string, opts ...interface{})
	Fatal(message string, opts ...interface{})
	Panic(message string, opts ...interface{})
	Child(opts ...interface{}) Logger
}

type entryLogger struct {
	entry *logrus.Entry
}

func (e *entryLogger) Trace(message string, opts ...interface{}) {
	e.with(opts).Trace(message)
}

func (e *entryLogger) Debug(message string, opts ...interface{}) {
	e.with(opts).Debug(message)
}

func (e *entryLogger) Info(message string, opts ...interface{}) {
	e.with(opts).Info(message)
}

func (e *entryLogger) Warning(message string, opts ...interface{}) {
	e.with(opts).Warning(message)
}

func (e *entryLogger) Error(message string, opts ...interface{}) {
	e.with(opts).Error(message)
}

func (e *entryLogger) Fatal(message string, opts ...interface{}) {
	e.with(opts).Fatal(message)
}

func (e *entryLogger) Panic(message string, opts ...interface{}) {
	e.with(opts).Panic(message)
}

func (e *entryLogger) Child(opts ...interface{}) Logger {
	return &entryLogger{
		entry: e.with(opts),
	}
}

func (e *entryLogger) with(opts []interface{}) *logrus.Entry {
	if len(opts) == 0 {
		return e.entry
	}
	return e.entry.WithFields(toFields(opts))
}

func toFields(opts []interface{}) logrus.Fields {
	if len(opts)%2 != 0 {
		panic("mismatched log key/value pairs")
	}

	fields := make(logrus.Fields, len(opts)/2)
	for i := 0; i < len(opts); i += 2 {
		key, ok := opts[i].(string)
		if !ok {
			panic("log keys must be strings")
		}
		val := opts[i+1]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		fields[key] = val
	}
	return fields
}

var base = logrus.New()

var root = &entryLogger{
	entry: logrus.NewEntry(base),
}

func init() {
	base.SetOutput(os.Stderr)
}

// SetLevel sets the minimum level for every module logger.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	base.SetLevel(lvl)
	return nil
}

func SetJSON(enabled bool) {
	if enabled {
		base.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	base.SetFormatter(&logrus.TextFormatter{})
}

func ModuleLogger(name string) Logger {
	return root.Child("module", name)
}
