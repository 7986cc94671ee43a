package errortracking

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryProvider implements the Provider interface using Sentry
type SentryProvider struct {
	hub *sentry.Hub
}

// SentryConfig holds the configuration for Sentry
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	Debug            bool
	SampleRate       float64
	TracesSampleRate float64
	ServerName       string
}

// NewSentryProvider creates a new Sentry provider
func NewSentryProvider(config SentryConfig) (*SentryProvider, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      config.Environment,
		Release:          config.Release,
		Debug:            config.Debug,
		AttachStacktrace: true,
		SampleRate:       config.SampleRate,
		TracesSampleRate: config.TracesSampleRate,
		ServerName:       config.ServerName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	hub := sentry.CurrentHub()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("app", "endpointkit")
	})

	return &SentryProvider{hub: hub}, nil
}

// CaptureError captures an error with the given severity and additional context
func (s *SentryProvider) CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{}) {
	if err == nil {
		return
	}

	event := s.newEvent(convertSeverity(severity), err.Error(), extra)
	event.Exception = []sentry.Exception{
		{
			Value:      err.Error(),
			Type:       fmt.Sprintf("%T", err),
			Stacktrace: sentry.ExtractStacktrace(err),
		},
	}
	s.hubFor(ctx).CaptureEvent(event)
}

// CaptureMessage captures a message with the given severity and additional context
func (s *SentryProvider) CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{}) {
	if message == "" {
		return
	}
	s.hubFor(ctx).CaptureEvent(s.newEvent(convertSeverity(severity), message, extra))
}

// CapturePanic captures a panic with stack trace
func (s *SentryProvider) CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{}) {
	if recovered == nil {
		return
	}

	event := s.newEvent(sentry.LevelFatal, fmt.Sprintf("Panic: %v", recovered), extra)
	event.Exception = []sentry.Exception{
		{
			Value: fmt.Sprintf("%v", recovered),
			Type:  "panic",
		},
	}
	if stackTrace != nil {
		event.Extra["stack_trace"] = string(stackTrace)
	}
	s.hubFor(ctx).CaptureEvent(event)
}

// Flush waits for all events to be sent (useful for graceful shutdown)
func (s *SentryProvider) Flush(timeout int) bool {
	return s.hub.Flush(time.Duration(timeout) * time.Second)
}

// Close closes the provider and releases resources
func (s *SentryProvider) Close() error {
	s.hub.Flush(2 * time.Second)
	return nil
}

func (s *SentryProvider) hubFor(ctx context.Context) *sentry.Hub {
	if ctx != nil {
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			return hub
		}
	}
	return s.hub
}

func (s *SentryProvider) newEvent(level sentry.Level, message string, extra map[string]interface{}) *sentry.Event {
	event := sentry.NewEvent()
	event.Level = level
	event.Message = message
	event.Extra = make(map[string]interface{}, len(extra)+1)
	for k, v := range extra {
		event.Extra[k] = v
	}
	return event
}

// convertSeverity converts our Severity to Sentry's Level
func convertSeverity(severity Severity) sentry.Level {
	switch severity {
	case SeverityError:
		return sentry.LevelError
	case SeverityWarning:
		return sentry.LevelWarning
	case SeverityInfo:
		return sentry.LevelInfo
	case SeverityDebug:
		return sentry.LevelDebug
	default:
		return sentry.LevelError
	}
}
