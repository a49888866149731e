package engine

import "errors"

var (
	// ErrNoTargets indicates Run was called with a nil or empty registry.
	ErrNoTargets = errors.New("engine: no targets")

	// ErrEmptyCatalog indicates the engine has no check definitions.
	ErrEmptyCatalog = errors.New("engine: empty catalog")

	// ErrNilAdapter indicates the engine has no probe adapter.
	ErrNilAdapter = errors.New("engine: nil probe adapter")
)
