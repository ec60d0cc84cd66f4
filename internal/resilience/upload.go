package resilience

import (
	"context"
	"fmt"
)

// Uploader uploads the recorded audio of one user turn.
type Uploader interface {
	UploadAudio(ctx context.Context, sessionID, filename, mimeType string, blob []byte) error
}

// GuardedUploader puts a [CircuitBreaker] in front of an [Uploader]. While the
// upload endpoint keeps failing, turns are dropped immediately with an error
// wrapping [ErrCircuitOpen] instead of holding a connection per turn.
type GuardedUploader struct {
	next    Uploader
	breaker *CircuitBreaker
}

var _ Uploader = (*GuardedUploader)(nil)

// NewGuardedUploader wraps next. cfg.Name defaults to "upload".
func NewGuardedUploader(next Uploader, cfg CircuitBreakerConfig) *GuardedUploader {
	if cfg.Name == "" {
		cfg.Name = "upload"
	}
	return &GuardedUploader{next: next, breaker: NewCircuitBreaker(cfg)}
}

// UploadAudio forwards to the wrapped uploader unless the breaker is open.
func (g *GuardedUploader) UploadAudio(ctx context.Context, sessionID, filename, mimeType string, blob []byte) error {
	err := g.breaker.Execute(func() error {
		return g.next.UploadAudio(ctx, sessionID, filename, mimeType, blob)
	})
	if err != nil {
		return fmt.Errorf("resilience: upload %s: %w", filename, err)
	}
	return nil
}

// State returns the breaker state.
func (g *GuardedUploader) State() State { return g.breaker.State() }
