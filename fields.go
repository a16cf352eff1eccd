package tether

import "github.com/zoobzio/capitan"

// Field keys for binding events.
var (
	// KeyBinding is the binding name on the bound object.
	KeyBinding = capitan.NewStringKey("binding")

	// KeyKeyPath is the key path observed on the target.
	KeyKeyPath = capitan.NewStringKey("key_path")

	// KeyDirection is the propagation direction.
	KeyDirection = capitan.NewStringKey("direction")

	// KeyStage is the pipeline stage at which a propagation failed.
	KeyStage = capitan.NewStringKey("stage")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyDuration is the time a propagation took.
	KeyDuration = capitan.NewDurationKey("duration")
)
