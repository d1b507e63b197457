package lrthrome

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the package-level logger used throughout lrthrome. It defaults
// to logging at info level to stderr; cmd/lrthromed adjusts the level
// from its -l/--log-level flag and LRTHROME_LOG_LEVEL, following the
// rdns.Log.SetLevel(...) convention its teacher exposes from main.go.
var Log = logrus.New()

func init() {
	Log.Out = os.Stderr
	Log.SetLevel(logrus.InfoLevel)
}
