package monitor

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/logger"
)

// SentryOptions configures a SentryReporter.
type SentryOptions struct {
	DSN         string
	Environment string
	Release     string
	ReportID    string

	// User values are masked out of every event before it leaves the process
	User User

	// Transport overrides the HTTP transport (tests)
	Transport sentry.Transport

	Logger *zap.SugaredLogger
}

// SentryReporter sends captures to Sentry through an isolated hub,
// so several reports in one process never share scope.
type SentryReporter struct {
	hub    *sentry.Hub
	user   User
	logger *zap.SugaredLogger
}

// NewSentryReporter creates a reporter. An empty DSN yields a client that drops events.
func NewSentryReporter(opts SentryOptions) (*SentryReporter, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &SentryReporter{user: opts.User, logger: log.Named("monitor")}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
		Transport:   opts.Transport,
		BeforeSend:  r.beforeSend,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sentry client")
	}

	r.hub = sentry.NewHub(client, sentry.NewScope())
	r.hub.ConfigureScope(func(scope *sentry.Scope) {
		if opts.ReportID != "" {
			scope.SetTag("reportId", opts.ReportID)
		}
	})

	r.logger.Debugw("Sentry reporter ready",
		logger.FieldReportID, opts.ReportID,
		"environment", opts.Environment,
		"enabled", opts.DSN != "" || opts.Transport != nil,
	)
	return r, nil
}

// CaptureError records err with tags and returns the Sentry event id.
func (r *SentryReporter) CaptureError(err error, tags map[string]string) string {
	if err == nil {
		return ""
	}
	var id *sentry.EventID
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		id = r.hub.CaptureException(err)
	})
	if id == nil {
		return ""
	}
	return string(*id)
}

// CaptureEvent records a message event carrying data as context.
func (r *SentryReporter) CaptureEvent(name string, data map[string]interface{}) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		if len(data) > 0 {
			scope.SetContext("event", sentry.Context(data))
		}
		r.hub.CaptureMessage(name)
	})
}

// Flush waits for buffered events to be delivered.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

func (r *SentryReporter) beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	values := r.user.sensitive()
	if len(values) == 0 {
		return event
	}

	event.Message = maskString(event.Message, values)
	for i := range event.Exception {
		event.Exception[i].Value = maskString(event.Exception[i].Value, values)
	}
	for k, v := range event.Tags {
		event.Tags[k] = maskString(v, values)
	}
	for k, ctx := range event.Contexts {
		if masked, ok := maskValue(map[string]interface{}(ctx), values).(map[string]interface{}); ok {
			event.Contexts[k] = masked
		}
	}
	for k, v := range event.Extra {
		event.Extra[k] = maskValue(v, values)
	}
	event.User = sentry.User{}
	return event
}
