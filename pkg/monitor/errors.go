package monitor

import "fmt"

// ConfigError reports an invalid engine configuration, threshold or strategy
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("monitor: invalid %s: %s", e.Field, e.Reason)
}
