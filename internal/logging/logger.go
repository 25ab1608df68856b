package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var agentLogger *logrus.Logger
var schedLogger *logrus.Logger

func init() {
	agentLogger = logrus.New()
	agentLogger.SetOutput(os.Stdout)
	agentLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: false,
	})
	agentLogger.SetLevel(logrus.InfoLevel)

	schedLogger = logrus.New()
	schedLogger.SetOutput(os.Stdout)
	schedLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: false,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "sched_msg",
		},
	})
	schedLogger.SetLevel(logrus.InfoLevel)
}

// Agent returns the logger used by the telemetry/control agent (C4, C5).
func Agent() *logrus.Logger {
	return agentLogger
}

// Sched returns the logger used by the RAN scheduler and manager (C1-C3).
func Sched() *logrus.Logger {
	return schedLogger
}

func SetAgentLevel(level string) error {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	agentLogger.SetLevel(l)
	return nil
}

func SetSchedLevel(level string) error {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	schedLogger.SetLevel(l)
	return nil
}
