package tether

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key binding events.
type MetricsProvider interface {
	// OnBind is called when a binding is registered.
	OnBind(binding string)

	// OnUnbind is called when a binding is torn down for any reason.
	OnUnbind(binding string)

	// OnStateChange is called when a binding transitions between states.
	OnStateChange(from, to State)

	// OnPropagation is called when a value reaches the opposite side.
	// Duration covers read, placeholder, transform, middleware and write.
	OnPropagation(direction Direction, duration time.Duration)

	// OnPropagationFailure is called when a propagation is aborted at stage.
	OnPropagationFailure(stage Stage, duration time.Duration)

	// OnPropagationSkipped is called when the reentrancy guard suppresses
	// a notification.
	OnPropagationSkipped(direction Direction)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnBind(_ string)                               {}
func (NoOpMetricsProvider) OnUnbind(_ string)                             {}
func (NoOpMetricsProvider) OnStateChange(_, _ State)                      {}
func (NoOpMetricsProvider) OnPropagation(_ Direction, _ time.Duration)    {}
func (NoOpMetricsProvider) OnPropagationFailure(_ Stage, _ time.Duration) {}
func (NoOpMetricsProvider) OnPropagationSkipped(_ Direction)              {}
