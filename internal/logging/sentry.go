// Package logging contains logrus helpers.
package logging

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

const flushTimeout = 2 * time.Second

type sentryHook struct {
	levels []logrus.Level
}

// NewSentryHook initializes sentry and returns a logrus hook which forwards
// entries of the given levels to it.
func NewSentryHook(o sentry.ClientOptions, levels ...logrus.Level) (logrus.Hook, error) {
	if err := sentry.Init(o); err != nil {
		return nil, fmt.Errorf("failed to init sentry: %w", err)
	}

	return sentryHook{levels: levels}, nil
}

func (h sentryHook) Levels() []logrus.Level {
	return h.levels
}

func (h sentryHook) Fire(e *logrus.Entry) error {
	event := sentry.NewEvent()
	event.Level = sentryLevel(e.Level)
	event.Message = e.Message
	event.Timestamp = e.Time

	for k, v := range e.Data {
		if k == logrus.ErrorKey {
			if err, ok := v.(error); ok {
				event.Message = fmt.Sprintf("%s: %s", e.Message, err)
				continue
			}
		}
		event.Extra[k] = v
	}

	sentry.CaptureEvent(event)

	if e.Level <= logrus.FatalLevel {
		sentry.Flush(flushTimeout)
	}

	return nil
}

func sentryLevel(l logrus.Level) sentry.Level {
	switch l {
	case logrus.PanicLevel, logrus.FatalLevel:
		return sentry.LevelFatal
	case logrus.ErrorLevel:
		return sentry.LevelError
	case logrus.WarnLevel:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}
