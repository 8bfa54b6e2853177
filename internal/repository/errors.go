package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicateID indicates an insert collided with an existing id. Ids are
// generated, so hitting this is an invariant violation rather than a normal
// outcome.
var ErrDuplicateID = errors.New("repository: duplicate id")
