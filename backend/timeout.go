package backend

import (
	"context"
	"time"
)

// DefaultTimeout bounds a backend call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// WithTimeout derives a context bounded by d, falling back to DefaultTimeout
// for non-positive values.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
