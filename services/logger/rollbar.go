package logsvc

import (
	"io"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/sirupsen/logrus"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/user"
)

// RollbarLogger reports to Rollbar and writes structured lines locally.
type RollbarLogger struct {
	log *logrus.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(out io.Writer, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	log := logrus.New()
	log.SetOutput(out)
	if conf.Debug {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	l := &RollbarLogger{log: log}
	l.Enable(conf.RollbarToken != "" && !(conf.Debug || conf.TestMode))
	return l
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Close waits for the pending Rollbar reports.
func (l RollbarLogger) Close() {
	rollbar.Close()
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, logrus.Fields) {
	var usrSet bool
	fields := make(logrus.Fields)
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			// set logged in User; only one
			if !usrSet {
				rollbar.SetPerson(a.ID, a.FullName(), a.Email)
				fields["user_id"] = a.ID
				usrSet = true
			}
			continue
		case error:
			fields[logrus.ErrorKey] = a.Error()
		case map[string]interface{}:
			for k, v := range a {
				fields[k] = v
			}
		}
		newArgs = append(newArgs, arg)
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return newArgs, fields
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rArgs, fields := l.prepare(msg, args)
	rollbar.Debug(rArgs...)
	l.log.WithFields(fields).Debug(msg)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rArgs, fields := l.prepare(msg, args)
	rollbar.Info(rArgs...)
	l.log.WithFields(fields).Info(msg)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rArgs, fields := l.prepare(msg, args)
	rollbar.Warning(rArgs...)
	l.log.WithFields(fields).Warn(msg)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rArgs, fields := l.prepare(msg, args)
	rollbar.Error(rArgs...)
	l.log.WithFields(fields).Error(msg)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rArgs, fields := l.prepare(msg, args)
	rollbar.Critical(rArgs...)
	rollbar.Close()
	l.log.WithFields(fields).Fatal(msg)
}
