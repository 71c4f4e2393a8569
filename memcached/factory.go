package memcached

// OperationFactory builds the wire operations the client dispatches. The
// binary dialect is the one implemented here; a text-dialect factory can be
// plugged through WithOperationFactory to produce CRLF-framed equivalents.
type OperationFactory interface {
	Get(key string, opaque uint32) *Request
	GetK(key string, opaque uint32) *Request
	GetKQ(key string, opaque uint32) *Request
	Store(op OpCode, key string, flags, exp uint32, cas uint64, opaque uint32, body []byte) *Request
	Delta(op OpCode, key string, delta, initial uint64, exp uint32, opaque uint32) *Request
	Delete(op OpCode, key string, opaque uint32) *Request
	Concat(op OpCode, key string, opaque uint32, body []byte) *Request
	Flush(exp uint32, opaque uint32) *Request
	Noop(opaque uint32) *Request
	Version(opaque uint32) *Request
	Stat(key string, opaque uint32) *Request
	SaslListMechs() *Request
	SaslAuth(mechanism string, data []byte) *Request
	SaslStep(mechanism string, data []byte) *Request
}

var _ OperationFactory = BinaryFactory{}

// BinaryFactory produces binary-protocol frames.
type BinaryFactory struct{}

func (BinaryFactory) Get(key string, opaque uint32) *Request {
	return &Request{Opcode: GET, Opaque: opaque, Key: []byte(key)}
}

func (BinaryFactory) GetK(key string, opaque uint32) *Request {
	return &Request{Opcode: GETK, Opaque: opaque, Key: []byte(key)}
}

func (BinaryFactory) GetKQ(key string, opaque uint32) *Request {
	return &Request{Opcode: GETKQ, Opaque: opaque, Key: []byte(key)}
}

func (BinaryFactory) Store(op OpCode, key string, flags, exp uint32, cas uint64, opaque uint32, body []byte) *Request {
	req := &Request{
		Opcode: op,
		Key:    []byte(key),
		Opaque: opaque,
		Cas:    cas,
		Flags:  flags,
		Body:   body,
	}
	req.prepareExtras(exp, 0, 0)
	return req
}

func (BinaryFactory) Delta(op OpCode, key string, delta, initial uint64, exp uint32, opaque uint32) *Request {
	req := &Request{
		Opcode: op,
		Key:    []byte(key),
		Opaque: opaque,
	}
	req.prepareExtras(exp, delta, initial)
	return req
}

func (BinaryFactory) Delete(op OpCode, key string, opaque uint32) *Request {
	return &Request{Opcode: op, Opaque: opaque, Key: []byte(key)}
}

func (BinaryFactory) Concat(op OpCode, key string, opaque uint32, body []byte) *Request {
	return &Request{Opcode: op, Opaque: opaque, Key: []byte(key), Body: body}
}

func (BinaryFactory) Flush(exp uint32, opaque uint32) *Request {
	req := &Request{Opcode: FLUSH, Opaque: opaque}
	req.prepareExtras(exp, 0, 0)
	return req
}

func (BinaryFactory) Noop(opaque uint32) *Request {
	return &Request{Opcode: NOOP, Opaque: opaque}
}

func (BinaryFactory) Version(opaque uint32) *Request {
	return &Request{Opcode: VERSION, Opaque: opaque}
}

func (BinaryFactory) Stat(key string, opaque uint32) *Request {
	req := &Request{Opcode: STAT, Opaque: opaque}
	if key != "" {
		req.Key = []byte(key)
	}
	return req
}

func (BinaryFactory) SaslListMechs() *Request {
	return &Request{Opcode: SASL_LIST_MECHS}
}

func (BinaryFactory) SaslAuth(mechanism string, data []byte) *Request {
	return &Request{Opcode: SASL_AUTH, Key: []byte(mechanism), Body: data}
}

func (BinaryFactory) SaslStep(mechanism string, data []byte) *Request {
	return &Request{Opcode: SASL_STEP, Key: []byte(mechanism), Body: data}
}
