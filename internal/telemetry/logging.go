package telemetry

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// InitLogger configures the global logrus logger. Production gets JSON for
// log shipping; everything else gets coloured text.
func InitLogger(appEnv, level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(lvl)

	if appEnv == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return nil
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return nil
}
