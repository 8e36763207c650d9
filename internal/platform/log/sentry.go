package log

import (
	"time"

	"github.com/getsentry/sentry-go"
	sentrylogrus "github.com/getsentry/sentry-go/logrus"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// SentrySettings represents the configuration required to bootstrap Sentry.
type SentrySettings struct {
	DSN         string
	Environment string
	Release     string
}

// redactedKeys never leave the process: a visitor cookie is the only credential of an identity.
var redactedKeys = []string{"cookie", "editor_cookie", "id"}

// InitSentry wires up Sentry exception logging and connects it to the provided logrus logger.
// It returns a nil hub when no DSN is configured.
func InitSentry(logger *logrus.Logger, settings SentrySettings) (*sentry.Hub, func(), error) {
	if settings.DSN == "" {
		return nil, func() {}, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         settings.DSN,
		Environment: settings.Environment,
		Release:     settings.Release,
		BeforeSend:  scrubEvent,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "error initializing sentry client")
	}

	hub := sentry.NewHub(client, sentry.NewScope())

	hook := sentrylogrus.NewLogHookFromClient([]logrus.Level{
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	}, client)
	logger.AddHook(hook)

	flush := func() {
		hub.Flush(2 * time.Second)
	}

	return hub, flush, nil
}

func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil {
		return nil
	}

	for _, key := range redactedKeys {
		if _, ok := event.Extra[key]; ok {
			event.Extra[key] = "[redacted]"
		}
		if _, ok := event.Tags[key]; ok {
			event.Tags[key] = "[redacted]"
		}
	}

	if event.Request != nil {
		event.Request.Cookies = ""
		if event.Request.Headers != nil {
			delete(event.Request.Headers, "Cookie")
		}
	}

	return event
}
