package sqle

import (
	"io"

	"github.com/sirupsen/logrus"
)

// LogFormat is the output format of the engine logs.
type LogFormat string

// Log formats.
const (
	TextLogFormat LogFormat = "text"
	JSONLogFormat LogFormat = "json"
)

// NewLogger returns a logger writing to out with the given level and
// format. An empty level means info.
func NewLogger(out io.Writer, level string, format LogFormat) (*logrus.Logger, error) {
	l := logrus.New()
	l.Out = out

	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l.Level = lvl

	switch format {
	case JSONLogFormat:
		l.Formatter = &logrus.JSONFormatter{}
	default:
		l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}
	return l, nil
}
