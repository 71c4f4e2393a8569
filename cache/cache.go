// Package cache is the typed facade over the protocol client: values go
// through a transcoder, expirations are normalized per the protocol's
// 30-day rule, and every operation answers with a Result carrying the
// server status verbatim.
package cache

import (
	"time"

	"github.com/cachewire/memcached/memcached"
	"github.com/cachewire/memcached/transcoder"
)

// CounterNoCreate as the expiration of an Increment/Decrement makes the
// operation fail on a missing key instead of seeding the initial value.
const CounterNoCreate = uint32(0xffffffff)

// Client wraps a protocol client with value transcoding.
// It is safe for use by multiple concurrent goroutines.
type Client struct {
	mc memcached.Memcached
	tc transcoder.Transcoder
}

// Option configures the facade.
type Option func(*Client)

// WithTranscoder replaces the default transcoder.
func WithTranscoder(tc transcoder.Transcoder) Option {
	return func(c *Client) {
		c.tc = tc
	}
}

// New returns a facade over mc.
func New(mc memcached.Memcached, opts ...Option) *Client {
	c := &Client{
		mc: mc,
		tc: transcoder.Default{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the decoded item stored under key. The Result carries the cas
// token of the read. A transcoder mismatch yields Success=false with the
// raw payload still reachable through Data.
func (c *Client) Get(key string) *Result {
	resp, err := c.mc.Get(key)
	res := resultFrom(resp, err)
	if !res.Success {
		return res
	}

	c.decodeInto(res, resp.ItemFlags())
	return res
}

// GetWithCas is Get; the cas token is always present on the Result.
func (c *Client) GetWithCas(key string) *Result {
	return c.Get(key)
}

// MultiGet returns the decoded items for every present key; missing keys
// and keys routed to failed nodes are simply absent from the map.
func (c *Client) MultiGet(keys []string) (map[string]*Result, error) {
	resps, err := c.mc.MultiGetResponses(keys)
	if err != nil {
		return nil, err
	}

	ret := make(map[string]*Result, len(resps))
	for key, resp := range resps {
		res := resultFrom(resp, nil)
		c.decodeInto(res, resp.ItemFlags())
		ret[key] = res
	}
	return ret, nil
}

// MultiGetWithCas is MultiGet; every Result carries its cas token.
func (c *Client) MultiGetWithCas(keys []string) (map[string]*Result, error) {
	return c.MultiGet(keys)
}

// Store writes value under key without expiration.
func (c *Client) Store(mode memcached.StoreMode, key string, value any) *Result {
	return c.store(mode, key, value, 0, 0)
}

// StoreFor writes value under key, expiring after ttl. A zero or negative
// ttl is rejected; use Store for items that never expire.
func (c *Client) StoreFor(mode memcached.StoreMode, key string, value any, ttl time.Duration) *Result {
	exp, err := expirationFromTTL(ttl)
	if err != nil {
		return &Result{StatusCode: uint16(memcached.UNKNOWN_STATUS), Message: err.Error()}
	}
	return c.store(mode, key, value, exp, 0)
}

// StoreUntil writes value under key, expiring at the given point in time.
func (c *Client) StoreUntil(mode memcached.StoreMode, key string, value any, t time.Time) *Result {
	exp, err := expirationAt(t)
	if err != nil {
		return &Result{StatusCode: uint16(memcached.UNKNOWN_STATUS), Message: err.Error()}
	}
	return c.store(mode, key, value, exp, 0)
}

// Cas writes value under key only while the stored item still carries the
// given cas token; a concurrent change fails with KEY_EEXISTS.
func (c *Client) Cas(mode memcached.StoreMode, key string, value any, cas uint64) *Result {
	return c.store(mode, key, value, 0, cas)
}

// CasFor is Cas with an expiration.
func (c *Client) CasFor(mode memcached.StoreMode, key string, value any, cas uint64, ttl time.Duration) *Result {
	exp, err := expirationFromTTL(ttl)
	if err != nil {
		return &Result{StatusCode: uint16(memcached.UNKNOWN_STATUS), Message: err.Error()}
	}
	return c.store(mode, key, value, exp, cas)
}

// Set stores value regardless of whether key exists.
func (c *Client) Set(key string, value any) *Result {
	return c.Store(memcached.Set, key, value)
}

// Add stores value only if key does not exist yet.
func (c *Client) Add(key string, value any) *Result {
	return c.Store(memcached.Add, key, value)
}

// Replace stores value only if key already exists.
func (c *Client) Replace(key string, value any) *Result {
	return c.Store(memcached.Replace, key, value)
}

// Append appends raw data to the item stored under key.
func (c *Client) Append(key string, data []byte) *Result {
	return resultFrom(c.mc.Append(memcached.Append, key, data))
}

// Prepend prepends raw data to the item stored under key.
func (c *Client) Prepend(key string, data []byte) *Result {
	return resultFrom(c.mc.Append(memcached.Prepend, key, data))
}

// Increment adds delta to the counter under key, seeding it with initial
// when absent; exp follows the protocol rules, CounterNoCreate suppresses
// the seeding. The Result value is the new counter value.
func (c *Client) Increment(key string, delta, initial uint64, exp uint32) *Result {
	return c.delta(memcached.Increment, key, delta, initial, exp)
}

// Decrement subtracts delta from the counter under key; the counter floors
// at zero.
func (c *Client) Decrement(key string, delta, initial uint64, exp uint32) *Result {
	return c.delta(memcached.Decrement, key, delta, initial, exp)
}

// Remove deletes the item stored under key; a missing key yields
// KEY_ENOENT. Repeating the call is stable.
func (c *Client) Remove(key string) *Result {
	return resultFrom(c.mc.Delete(key))
}

// Flush drops every item on every node.
func (c *Client) Flush() error {
	return c.mc.FlushAll(0)
}

// FlushAfter drops every item on every node after the given delay.
func (c *Client) FlushAfter(ttl time.Duration) error {
	exp, err := expirationFromTTL(ttl)
	if err != nil {
		return err
	}
	return c.mc.FlushAll(exp)
}

// Stats collects the named statistics group from every node.
func (c *Client) Stats(arg string) (map[string]map[string]string, error) {
	return c.mc.Stats(arg)
}

// Version reports every node's server version.
func (c *Client) Version() (map[string]string, error) {
	return c.mc.Version()
}

func (c *Client) store(mode memcached.StoreMode, key string, value any, exp uint32, cas uint64) *Result {
	flags, data, err := c.tc.Encode(value)
	if err != nil {
		return &Result{StatusCode: uint16(memcached.UNKNOWN_STATUS), Message: err.Error()}
	}

	return resultFrom(c.mc.StoreWithMeta(mode, key, flags, exp, cas, data))
}

func (c *Client) delta(mode memcached.DeltaMode, key string, delta, initial uint64, exp uint32) *Result {
	newValue, err := c.mc.Delta(mode, key, delta, initial, exp)
	if err != nil {
		return resultFrom(nil, err)
	}
	return &Result{
		Success:    true,
		Value:      newValue,
		StatusCode: uint16(memcached.SUCCESS),
	}
}

func (c *Client) decodeInto(res *Result, flags uint32) {
	value, err := c.tc.Decode(flags, res.Data)
	if err != nil {
		res.Success = false
		res.Message = err.Error()
		return
	}
	res.Value = value
}
