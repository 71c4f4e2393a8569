package memcached

import (
	"fmt"
	"strings"
)

// authenticate runs the SASL handshake on a freshly opened connection:
// list the server mechanisms, pick PLAIN, then step until the server stops
// answering FURTHER_AUTH. The step loop is bounded by maxSaslSteps.
func (c *Client) authenticate(cn *conn) error {
	mech, err := c.chooseMechanism(cn)
	if err != nil {
		return err
	}

	req := c.fct.SaslAuth(mech, c.authData)
	resp, err := c.roundTrip(cn, req)
	if err == nil {
		return nil
	}

	for step := 0; errStatus(err) == FURTHER_AUTH; step++ {
		if step >= maxSaslSteps {
			return fmt.Errorf("%w: no success after %d sasl steps", ErrAuthFail, maxSaslSteps)
		}

		req = c.fct.SaslStep(mech, c.authData)
		resp, err = c.roundTrip(cn, req)
		if err == nil {
			return nil
		}
	}

	if resp != nil {
		return fmt.Errorf("%w: %s", ErrAuthFail, resp.Status)
	}
	return fmt.Errorf("%w: %s", ErrAuthFail, err.Error())
}

// chooseMechanism asks the server for its mechanism list. Servers that do
// not implement SASL_LIST_MECHS still accept PLAIN, so any protocol-level
// failure falls back to it.
func (c *Client) chooseMechanism(cn *conn) (string, error) {
	resp, err := c.roundTrip(cn, c.fct.SaslListMechs())
	if err != nil {
		if isFatal(err) {
			return "", err
		}
		return SaslMechanismPlain, nil
	}

	mechs := strings.Fields(string(resp.Body))
	for _, m := range mechs {
		if m == SaslMechanismPlain {
			return m, nil
		}
	}
	if len(mechs) == 0 {
		return SaslMechanismPlain, nil
	}

	return "", fmt.Errorf("%w: no supported mechanism in %q", ErrAuthFail, string(resp.Body))
}

// roundTrip writes one request and reads one response on cn without
// touching the pool.
func (c *Client) roundTrip(cn *conn, req *Request) (*Response, error) {
	if _, err := transmitRequest(cn.wrtBuf, req); err != nil {
		cn.healthy = false
		return nil, err
	}
	if err := cn.wrtBuf.Flush(); err != nil {
		cn.healthy = false
		return nil, err
	}

	cn.setReadDeadline(c.receiveTimeout())

	resp, _, err := getResponse(cn.rc, cn.hdrBuf)
	if isFatal(err) {
		cn.healthy = false
	}
	return resp, err
}
