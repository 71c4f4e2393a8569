package cache

import (
	"errors"
	"time"
)

// maxRelativeExpiration is the protocol cutoff: expiration values up to 30
// days are relative seconds, anything larger is absolute epoch seconds.
const maxRelativeExpiration = 30 * 24 * time.Hour

// ErrInvalidExpiration is returned for zero or negative expirations; use the
// no-expiration method variants to store items that never expire.
var ErrInvalidExpiration = errors.New("cache: expiration must be positive")

// expirationFromTTL converts a time-to-live into the protocol expiration
// field per the 30-day rule.
func expirationFromTTL(ttl time.Duration) (uint32, error) {
	if ttl <= 0 {
		return 0, ErrInvalidExpiration
	}

	if ttl <= maxRelativeExpiration {
		secs := int64(ttl / time.Second)
		if ttl%time.Second != 0 {
			secs++
		}
		return uint32(secs), nil
	}

	return uint32(time.Now().Add(ttl).Unix()), nil
}

// expirationAt converts an absolute point in time into the protocol
// expiration field (epoch seconds).
func expirationAt(t time.Time) (uint32, error) {
	if t.IsZero() || !t.After(time.Now()) {
		return 0, ErrInvalidExpiration
	}
	return uint32(t.Unix()), nil
}
