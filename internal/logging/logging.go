// Package logging builds the structured logger shared by the API server and the reaper.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger writing to stdout. Production gets JSON lines so
// orphan reports can be grepped by field; everything else gets text.
func New(appEnv, level string) *logrus.Logger {
	return NewWithOutput(os.Stdout, appEnv, level)
}

// NewWithOutput is New with an explicit writer.
func NewWithOutput(out io.Writer, appEnv, level string) *logrus.Logger {
	l := logrus.New()
	l.Out = out

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.Level = lvl

	if appEnv == "production" {
		l.Formatter = &logrus.JSONFormatter{}
	} else {
		l.Formatter = &logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		}
	}
	return l
}
