package connector

import (
	"context"
	"errors"
	"slices"
)

type (
	// stack holds compensating actions for partially applied multi-step
	// operations.
	stack struct {
		Destructors []destructor
	}
	destructor func(ctx context.Context) error
)

// Push adds a destructor to the 'Destructors' slice, to be destroyed in the
// reverse order they were added.
func (s *stack) Push(d destructor) {
	s.Destructors = append(s.Destructors, d)
}

// Destroy calls all accumulated destructors in the reverse order they were
// added, returning all encountered errors joined. The stack is empty
// afterwards.
func (s *stack) Destroy(ctx context.Context) error {
	var errs error
	for _, destructor := range slices.Backward(s.Destructors) {
		errs = errors.Join(errs, destructor(ctx))
	}
	s.Destructors = nil
	return errs
}
