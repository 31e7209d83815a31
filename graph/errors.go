package graph

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidUsage is returned when a usage, node or external id does not
	// belong to the builder.
	ErrInvalidUsage = errors.New("invalid usage")
	// ErrReadBeforeWrite is returned when a read refers to a version that
	// has not been written.
	ErrReadBeforeWrite = errors.New("read of a version with no prior write")
	// ErrStaleVersion is returned when a node modifies a version that has
	// already been superseded by another write.
	ErrStaleVersion = errors.New("modify of a superseded version")
	// ErrCallbackAlreadySet is returned when a node gets a second callback.
	ErrCallbackAlreadySet = errors.New("node callback already set")
	// ErrCycle is returned when explicit dependencies form a cycle.
	ErrCycle = errors.New("dependency cycle")
	// ErrConstraintConflict is returned when usages of a resource require
	// incompatible specifications.
	ErrConstraintConflict = errors.New("constraint conflict")
	// ErrUnresolvedFormat is returned when no usage of an image sets its
	// format.
	ErrUnresolvedFormat = errors.New("image format unresolved")
	// ErrUnresolvedSize is returned when no usage of a buffer sets its size.
	ErrUnresolvedSize = errors.New("buffer size unresolved")
	// ErrStateConflict is returned when one node requires two different
	// states of the same physical resource.
	ErrStateConflict = errors.New("resource state conflict")
)

// ConfigError reports a malformed graph. It is never retried: the graph
// must be fixed by the caller.
type ConfigError struct {
	// Stage names the builder call or planning step that failed.
	Stage string
	Err   error
}

func (e *ConfigError) Error() string {
	return "rendergraph: " + e.Stage + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func configErrorf(stage string, sentinel error, format string, args ...any) error {
	return &ConfigError{
		Stage: stage,
		Err:   errors.Wrapf(sentinel, format, args...),
	}
}
