package machine

import "context"

// An Adapter represents the minimal machine command interface.
type Adapter interface {
	// RunSBP submits an OpenSBP program and returns once the machine is idle again.
	RunSBP(ctx context.Context, code string) error

	// Status queries the current machine state.
	Status(ctx context.Context) (State, error)
}
