package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. Services derive module loggers from
// it with WithField("module", ...).
func NewLogger(level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logg := logrus.New()
	logg.SetOutput(os.Stdout)
	logg.SetLevel(lvl)
	if format == "json" {
		logg.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logg, nil
}

// LogError logs err with the module and operation that produced it.
func LogError(logger logrus.FieldLogger, module, op string, data any, err error) {
	fields := logrus.Fields{"module": module, "op": op}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
