package errortracking

import (
	"fmt"

	"github.com/bitechdev/EndpointKit/pkg/config"
)

// NewProviderFromConfig creates the provider selected by the error_tracking
// configuration section. Disabled tracking yields a NoOpProvider.
func NewProviderFromConfig(cfg config.ErrorTrackingConfig) (Provider, error) {
	if !cfg.Enabled {
		return NewNoOpProvider(), nil
	}

	switch cfg.Provider {
	case "sentry":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sentry DSN is required when error tracking is enabled")
		}
		if err := checkRate("sample_rate", cfg.SampleRate); err != nil {
			return nil, err
		}
		if err := checkRate("traces_sample_rate", cfg.TracesSampleRate); err != nil {
			return nil, err
		}
		return NewSentryProvider(SentryConfig{
			DSN:              cfg.DSN,
			Environment:      cfg.Environment,
			Release:          cfg.Release,
			Debug:            cfg.Debug,
			SampleRate:       cfg.SampleRate,
			TracesSampleRate: cfg.TracesSampleRate,
			ServerName:       cfg.ServerName,
		})
	case "noop", "":
		return NewNoOpProvider(), nil
	default:
		return nil, fmt.Errorf("unknown error tracking provider: %s", cfg.Provider)
	}
}

func checkRate(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("error_tracking.%s must be between 0 and 1, got %v", name, v)
	}
	return nil
}
