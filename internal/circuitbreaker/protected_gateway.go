package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/gateway"
)

// ProtectedGateway wraps a messaging gateway with a CircuitBreaker.
// While the circuit is open the gateway also reports not-ready, so the
// scheduler surfaces a disconnected status instead of marking the whole
// queue failed one item at a time.
type ProtectedGateway struct {
	gw      gateway.Gateway
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedGateway wraps a gateway with circuit breaker protection.
func NewProtectedGateway(gw gateway.Gateway, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedGateway {
	return &ProtectedGateway{
		gw:      gw,
		breaker: breaker,
		logger:  logger,
	}
}

// Ready reports false while the circuit is open.
func (p *ProtectedGateway) Ready() bool {
	if p.breaker.GetState() == StateOpen {
		return false
	}
	return p.gw.Ready()
}

// Send attempts a delivery through the circuit breaker.
// If the circuit is open, returns ErrCircuitOpen immediately (fail fast).
func (p *ProtectedGateway) Send(ctx context.Context, recipient, body, mediaPath string) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send - failing fast",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("recipient", recipient),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s gateway unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	err := p.gw.Send(ctx, recipient, body, mediaPath)
	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.config.Name),
			zap.Error(err),
		)
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

// Breaker returns the underlying circuit breaker for metrics/monitoring.
func (p *ProtectedGateway) Breaker() *CircuitBreaker {
	return p.breaker
}
