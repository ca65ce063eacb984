package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// credentialHeaders never leave the process in error reports.
var credentialHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
		BeforeSend:       scrubCredentials,
	})
}

func scrubCredentials(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil || event.Request == nil {
		return event
	}
	event.Request.Cookies = ""
	for _, header := range credentialHeaders {
		delete(event.Request.Headers, header)
	}
	return event
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
