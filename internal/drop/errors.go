package drop

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by DropService wraps exactly one of
// these so outer layers can map it with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrIntegrity       = errors.New("integrity check failed")
	ErrCapacity        = errors.New("capacity exceeded")
	ErrDependency      = errors.New("dependency failure")
)

var categories = []error{
	ErrUnauthenticated,
	ErrForbidden,
	ErrNotFound,
	ErrValidation,
	ErrIntegrity,
	ErrCapacity,
	ErrDependency,
}

// Category returns the sentinel err belongs to, or nil if it is uncategorised.
func Category(err error) error {
	for _, c := range categories {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}

// storeErr wraps a failure from the database or blob store. Errors that
// already carry a category keep it; anything else is a dependency failure.
func storeErr(op string, err error) error {
	if Category(err) != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDependency, err)
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
