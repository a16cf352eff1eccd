package tether

import "github.com/zoobzio/capitan"

// Binding lifecycle signals.
var (
	// BindingCreated is emitted when a binding is registered.
	BindingCreated = capitan.NewSignal(
		"tether.binding.created",
		"Binding registered",
	)

	// BindingRemoved is emitted when a binding is unbound explicitly or
	// replaced by a new binding under the same name.
	BindingRemoved = capitan.NewSignal(
		"tether.binding.removed",
		"Binding removed",
	)

	// BindingReleased is emitted when a binding is torn down because its
	// target or bound object went away.
	BindingReleased = capitan.NewSignal(
		"tether.binding.released",
		"Binding released with its object",
	)

	// BindingStateChanged is emitted when a binding transitions between states.
	BindingStateChanged = capitan.NewSignal(
		"tether.binding.state.changed",
		"Binding state transition",
	)
)

// Propagation signals.
var (
	// PropagationSucceeded is emitted when a value reaches the opposite side.
	PropagationSucceeded = capitan.NewSignal(
		"tether.propagation.succeeded",
		"Value propagated",
	)

	// PropagationSkipped is emitted when the reentrancy guard suppresses a
	// notification caused by the binding's own write.
	PropagationSkipped = capitan.NewSignal(
		"tether.propagation.skipped",
		"Propagation suppressed by guard",
	)

	// PropagationFailed is emitted when a propagation is aborted.
	PropagationFailed = capitan.NewSignal(
		"tether.propagation.failed",
		"Propagation failed",
	)
)
