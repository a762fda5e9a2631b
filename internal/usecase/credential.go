// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"time"

	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/observability"
)

// WithCredential leases one credential from the pool for the duration of fn
// and releases it on every exit path, panics included. The release runs on a
// cancellation-free context so a dead caller cannot strand the key.
func WithCredential(ctx domain.Context, creds domain.CredentialRepository, fn func(domain.Credential) error) error {
	start := time.Now()
	c, err := creds.Checkout(ctx)
	if err != nil {
		return err
	}
	observability.ObserveCredentialWait(time.Since(start))
	defer func() {
		_ = creds.Release(context.WithoutCancel(ctx), c.ID)
	}()
	return fn(c)
}
