package cache

import (
	"fmt"

	"github.com/jmgilman/go/errors"
)

var (
	// ErrSerialization is returned by Set when a value cannot be encoded.
	ErrSerialization = errors.New(errors.CodeInvalidInput, "cache value could not be serialized")

	// ErrInvalidKeyFormat is returned by KeyCodec.Decode for keys it did not produce.
	ErrInvalidKeyFormat = errors.New(errors.CodeInvalidInput, "invalid namespaced cache key")

	// ErrStoreUnavailable marks a remote store failure. It is only ever logged.
	ErrStoreUnavailable = errors.New(errors.CodeUnavailable, "remote cache store unavailable")

	// ErrTimeout marks a remote store call that exceeded its deadline. Handled like ErrStoreUnavailable.
	ErrTimeout = errors.New(errors.CodeTimeout, "remote cache store timed out")

	// ErrInvalidResultType is returned by the typed helpers when a cached value has an unexpected type.
	ErrInvalidResultType = errors.New(errors.CodeInternal, "cached result has unexpected type")

	// ErrNilFetch is returned by Fetch when no fetch function is supplied.
	ErrNilFetch = errors.New(errors.CodeInvalidInput, "fetch function cannot be nil")
)

// serializationError keeps both ErrSerialization and the encoder error in the chain.
func serializationError(key string, cause error) error {
	return fmt.Errorf("%w: key %q: %w", ErrSerialization, key, cause)
}
