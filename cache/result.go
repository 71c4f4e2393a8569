package cache

import (
	"github.com/cachewire/memcached/memcached"
)

// Result is the outcome of one cache operation. StatusCode carries the
// protocol status verbatim; Data keeps the raw payload even when decoding
// fails, so a caller can recover from a transcoder mismatch.
type Result struct {
	Success    bool
	Value      any
	Data       []byte
	Cas        uint64
	StatusCode uint16
	Message    string
}

// resultFrom shapes a protocol response (or its error) into a Result.
func resultFrom(resp *memcached.Response, err error) *Result {
	if err == nil {
		res := &Result{
			Success:    true,
			StatusCode: uint16(memcached.SUCCESS),
		}
		if resp != nil {
			res.Cas = resp.Cas
			res.Data = resp.Body
		}
		return res
	}

	if mcResp := memcached.UnwrapMemcachedError(err); mcResp != nil {
		return &Result{
			StatusCode: uint16(mcResp.Status),
			Cas:        mcResp.Cas,
			Data:       mcResp.Body,
			Message:    mcResp.Status.String(),
		}
	}

	return &Result{
		StatusCode: uint16(memcached.UNKNOWN_STATUS),
		Message:    err.Error(),
	}
}
