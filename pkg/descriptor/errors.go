package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a descriptor id is not registered.
var ErrNotFound = errors.New("descriptor not found")

// DuplicateError is returned when an id is registered twice.
type DuplicateError struct {
	ID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("descriptor %s is already registered", e.ID)
}

// InvalidIDError is returned for ids that do not follow the AAA0000 form.
type InvalidIDError struct {
	ID string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid descriptor id %q (want three capitals and four digits, e.g. API0001)", e.ID)
}

// NotFoundError carries the missing id and close matches.
type NotFoundError struct {
	ID          string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("descriptor %s not found", e.ID)
	}
	return fmt.Sprintf("descriptor %s not found (did you mean %s?)", e.ID, strings.Join(e.Suggestions, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
