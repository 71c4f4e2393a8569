package memcached

import (
	"errors"
	"fmt"
)

const libPrefix = "memcached"

var (
	// ErrCacheMiss means that a Get failed because the item wasn't present.
	ErrCacheMiss = errors.New("memcached: cache miss")

	// ErrCASConflict means that a compare-and-swap store failed due to the
	// cached value being modified between the Get and the store, or that an
	// Add found the key already present (both are KEY_EEXISTS).
	// If the cached value was simply evicted rather than replaced,
	// ErrCacheMiss will be returned instead.
	ErrCASConflict = errors.New("memcached: compare-and-swap conflict")

	// ErrNotStored means that the server answered NOT_STORED, e.g. for an
	// Append or Prepend on a key that does not exist.
	ErrNotStored = errors.New("memcached: item not stored")

	// ErrServerError means that a server error occurred.
	ErrServerError = errors.New("memcached: server error")

	// ErrMalformedKey is returned when an invalid key is used.
	// Keys must be at maximum 250 bytes long and not
	// contain whitespace or control characters.
	ErrMalformedKey = errors.New("memcached: key is too long or contains invalid characters")

	// ErrNoServers is returned when no servers are configured or available.
	ErrNoServers = errors.New("memcached: no servers configured or available")

	// ErrInvalidAddr means that an incorrect address was passed and could not be cast to net.Addr
	ErrInvalidAddr = errors.New("memcached: invalid address for server")

	// ErrServerNotAvailable means that one of the nodes is currently unavailable
	ErrServerNotAvailable = errors.New("memcached: server(s) is not available")

	// ErrNotConfigured means that some required parameter is not set in the configuration
	ErrNotConfigured = errors.New("memcached: not complete configuration")

	// ErrUnknownCommand means that in request consumer use unknown command for memcached.
	ErrUnknownCommand = errors.New("memcached: unknown command")

	// ErrDataSizeExceedsLimit means that memcached cannot process the request data due to its size.
	ErrDataSizeExceedsLimit = errors.New("memcached: data size exceeds limit")

	// ErrInvalidArguments indicates invalid arguments or operation parameters (non-user request error).
	ErrInvalidArguments = errors.New("memcached: invalid arguments or operation parameters")

	// ErrAuthFail indicates that an authorization attempt was made, but it did not work
	ErrAuthFail = errors.New("memcached: authentication enabled but operation failed")

	// ErrBadMagic means a frame arrived with a magic byte that is neither a
	// request nor a response; the connection is poisoned.
	ErrBadMagic = errors.New("memcached: bad magic")
)

// resumableError returns true if err is only a protocol-level cache error.
// This is used to determine whether a server connection should
// be re-used or not. If an error occurs, by default we don't reuse the
// connection, unless it was just a cache error.
func resumableError(err error) bool {
	switch {
	case errors.Is(err, ErrCacheMiss), errors.Is(err, ErrCASConflict),
		errors.Is(err, ErrNotStored), errors.Is(err, ErrMalformedKey):
		return true
	}
	return false
}

func wrapMemcachedResp(resp *Response) error {
	switch resp.Status {
	case SUCCESS:
		return nil
	case KEY_ENOENT:
		return fmt.Errorf("%w. %w", ErrCacheMiss, resp)
	case KEY_EEXISTS:
		return fmt.Errorf("%w. %w", ErrCASConflict, resp)
	case NOT_STORED:
		return fmt.Errorf("%w. %w", ErrNotStored, resp)
	case EINVAL, DELTA_BADVAL:
		return fmt.Errorf("%w. %w", ErrInvalidArguments, resp)
	case ENOMEM:
		return fmt.Errorf("%w. %w", ErrServerError, resp)
	case TMPFAIL:
		return fmt.Errorf("%w. %w", ErrServerNotAvailable, resp)
	case UNKNOWN_COMMAND:
		return fmt.Errorf("%w. %w", ErrUnknownCommand, resp)
	case E2BIG:
		return fmt.Errorf("%w. %w", ErrDataSizeExceedsLimit, resp)
	case AUTHFAIL, FURTHER_AUTH:
		return fmt.Errorf("%w. %w", ErrAuthFail, resp)
	default:
		return fmt.Errorf("%w. %w", ErrServerError, resp)
	}
}

func errStatus(e error) Status {
	status := UNKNOWN_STATUS
	var res *Response
	if errors.As(e, &res) {
		status = res.Status
	}
	return status
}
