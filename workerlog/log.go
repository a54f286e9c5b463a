package workerlog

import "github.com/sirupsen/logrus"

// For scopes a logger to a single component (e.g. "room", "channel") so
// every entry carries a consistent "component" field without each call
// site repeating it.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// SetLevel parses a textual level (as would come from workerconfig) and
// applies it to the package-wide logrus logger. Unknown levels fall back to
// info, matching the teacher's logger.Init default.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
