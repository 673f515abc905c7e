package logsvc

import (
	"fmt"
	"log"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/heluDuyne/lingolab/core"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
	levelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// RollbarLogger reports to rollbar and echoes every entry to a std logger.
// Debug entries are only echoed when the config has Debug set.
type RollbarLogger struct {
	std   *log.Logger
	debug bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.Debug && !conf.TestMode)
	return &RollbarLogger{std: std, debug: conf.Debug}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, core.Person
func (l *RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var person *core.Person
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch p := arg.(type) {
		case core.Person:
			if person == nil {
				person = &p
			}
		case *core.Person:
			if person == nil && p != nil {
				person = p
			}
		default:
			newArgs = append(newArgs, arg)
		}
	}
	if person != nil {
		rollbar.SetPerson(person.ID, person.Username, person.Email)
	} else {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l *RollbarLogger) print(lvl level, msg string, args []interface{}) {
	if lvl == levelDebug && !l.debug {
		return
	}
	var b strings.Builder
	b.WriteString(levelNames[lvl])
	b.WriteString(" ")
	b.WriteString(msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			fmt.Fprintf(&b, " error=%q", a.Error())
		case core.Person:
			fmt.Fprintf(&b, " person=%s", a.ID)
		case *core.Person:
			if a != nil {
				fmt.Fprintf(&b, " person=%s", a.ID)
			}
		case map[string]interface{}:
			for k, v := range a {
				fmt.Fprintf(&b, " %s=%v", k, v)
			}
		default:
			fmt.Fprintf(&b, " %+v", a)
		}
	}
	l.std.Println(b.String())
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(levelDebug, msg, args)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(levelInfo, msg, args)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(levelWarn, msg, args)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(levelError, msg, args)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print(levelFatal, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
