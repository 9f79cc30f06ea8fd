package browser

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/resilience"
	"go.uber.org/zap"
)

// GuardedLauncher fails launches fast while the underlying launcher keeps failing.
type GuardedLauncher struct {
	inner   Launcher
	breaker *resilience.Breaker
}

// NewGuardedLauncher wraps inner with a circuit breaker that opens after
// failures consecutive launch errors and stays open for timeout.
func NewGuardedLauncher(inner Launcher, settings resilience.Settings, logger *zap.Logger) *GuardedLauncher {
	settings.IsSuccessful = func(err error) bool {
		// A caller giving up says nothing about Chrome.
		return err == nil || errors.Is(err, context.Canceled)
	}
	settings.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("launch breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &GuardedLauncher{
		inner:   inner,
		breaker: resilience.New("browser-launch", settings),
	}
}

// Launch delegates to the wrapped launcher unless the breaker is open.
func (g *GuardedLauncher) Launch(ctx context.Context, opts LaunchOptions) (Handle, error) {
	return resilience.Call(g.breaker, func() (Handle, error) {
		return g.inner.Launch(ctx, opts)
	})
}

// State reports the breaker state.
func (g *GuardedLauncher) State() resilience.State {
	return g.breaker.State()
}
