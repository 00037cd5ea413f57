package provider

import (
	"context"
	"fmt"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

// circuitProvider wraps a Provider with a circuit breaker. Once a provider
// starts failing consistently, concurrent orchestrator fan-out batches
// (§8) that would each otherwise burn through agentloop's own retry
// backoff against a service that's already down instead fail fast.
type circuitProvider struct {
	Provider
	cb *engerrors.CircuitBreaker
}

// WithCircuitBreaker wraps p so every Generate call is gated by cb.
func WithCircuitBreaker(p Provider, cb *engerrors.CircuitBreaker) Provider {
	return &circuitProvider{Provider: p, cb: cb}
}

func (c *circuitProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if !c.cb.Allow() {
		return nil, engerrors.ProviderPermanentError(
			fmt.Sprintf("provider %q circuit %q is open", c.Provider.Name(), c.cb.Name()),
			engerrors.ErrCircuitOpen)
	}

	resp, err := c.Provider.Generate(ctx, req)
	if err != nil {
		c.cb.RecordFailure()
		return nil, err
	}
	c.cb.RecordSuccess()
	return resp, nil
}
