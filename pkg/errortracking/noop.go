package errortracking

import "context"

// NoOpProvider discards everything. Used when error tracking is disabled.
type NoOpProvider struct{}

// NewNoOpProvider creates a new NoOp provider
func NewNoOpProvider() *NoOpProvider {
	return &NoOpProvider{}
}

func (n *NoOpProvider) CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{}) {
}

func (n *NoOpProvider) CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{}) {
}

func (n *NoOpProvider) CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{}) {
}

func (n *NoOpProvider) Flush(timeout int) bool {
	return true
}

func (n *NoOpProvider) Close() error {
	return nil
}
