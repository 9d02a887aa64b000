// Package common provides the bot's structured logging: a global logrus
// instance whose output is split between stdout and stderr by level, so a
// supervising process (systemd, a container runtime) can treat error-level
// lines as the signal worth alerting on.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus' already-formatted output: lines containing
// "level=error" go to stderr, everything else to stdout.
type OutputSplitter struct{}

func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-wide logrus instance every ContextLogger wraps.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
