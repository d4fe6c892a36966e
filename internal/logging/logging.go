// Package logging configures the daemon's structured logger, mapping the
// five levels named in the external interfaces onto logrus levels.
package logging

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ParseLevel maps one of CRITICAL/ERROR/WARNING/INFO/DEBUG onto a logrus
// level. CRITICAL has no direct logrus equivalent and maps to
// logrus.FatalLevel, since both terminate the process.
func ParseLevel(name string) (logrus.Level, error) {
	switch strings.ToUpper(name) {
	case "CRITICAL":
		return logrus.FatalLevel, nil
	case "ERROR":
		return logrus.ErrorLevel, nil
	case "WARNING":
		return logrus.WarnLevel, nil
	case "INFO":
		return logrus.InfoLevel, nil
	case "DEBUG":
		return logrus.DebugLevel, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", name)
	}
}

// New builds a logger at the given level, using logrus's text formatter
// so component/peer/msg_id fields print inline during interactive runs.
func New(levelName string) (*logrus.Logger, error) {
	level, err := ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}

// Component returns a logger scoped to one named component (e.g. "arq",
// "pathdiscovery"), the convention every component's run loop uses to tag
// its entries.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
