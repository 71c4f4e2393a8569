// Package transcoder converts typed values to the byte payload and 32-bit
// type flag stored on the server, and back.
//
// The flag travels in the item's opaque flags field, so a value written by
// one process decodes to the same type in another. Composite types go
// through gob; callers storing their own struct types must gob.Register
// them once at startup.
package transcoder

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
)

// Type flags assigned to stored payloads.
const (
	FlagString  = uint32(1)
	FlagBytes   = uint32(2)
	FlagBool    = uint32(3)
	FlagInt8    = uint32(4)
	FlagInt16   = uint32(5)
	FlagInt32   = uint32(6)
	FlagInt64   = uint32(7)
	FlagUint8   = uint32(8)
	FlagUint16  = uint32(9)
	FlagUint32  = uint32(10)
	FlagUint64  = uint32(11)
	FlagInt     = uint32(12)
	FlagUint    = uint32(13)
	FlagFloat32 = uint32(20)
	FlagFloat64 = uint32(21)

	// FlagObject marks a gob-encoded composite value.
	FlagObject = uint32(100)
)

var (
	// ErrTranscoderMismatch is returned when the stored flag does not match
	// any decodable type; the raw payload stays available to the caller.
	ErrTranscoderMismatch = errors.New("transcoder: stored flag does not match a decodable type")

	// ErrUnsupportedType is returned by Encode for values that cannot be
	// serialized.
	ErrUnsupportedType = errors.New("transcoder: unsupported value type")
)

// Transcoder converts a typed value to (flags, bytes) and back. The contract
// is Decode(Encode(v)) == v for every supported value.
type Transcoder interface {
	Encode(v any) (flags uint32, data []byte, err error)
	Decode(flags uint32, data []byte) (any, error)
	DecodeInto(flags uint32, data []byte, out any) error
}

var _ Transcoder = Default{}

// Default is the flag-table transcoder: primitives get fixed-width
// big-endian encodings, everything else is gob.
type Default struct{}

// Encode converts v into its wire payload and type flag.
func (Default) Encode(v any) (uint32, []byte, error) {
	switch vt := v.(type) {
	case string:
		return FlagString, []byte(vt), nil
	case []byte:
		return FlagBytes, vt, nil
	case bool:
		if vt {
			return FlagBool, []byte{1}, nil
		}
		return FlagBool, []byte{0}, nil
	case int8:
		return FlagInt8, []byte{byte(vt)}, nil
	case int16:
		return FlagInt16, appendUint(make([]byte, 0, 2), uint64(uint16(vt)), 2), nil
	case int32:
		return FlagInt32, appendUint(make([]byte, 0, 4), uint64(uint32(vt)), 4), nil
	case int64:
		return FlagInt64, appendUint(make([]byte, 0, 8), uint64(vt), 8), nil
	case uint8:
		return FlagUint8, []byte{vt}, nil
	case uint16:
		return FlagUint16, appendUint(make([]byte, 0, 2), uint64(vt), 2), nil
	case uint32:
		return FlagUint32, appendUint(make([]byte, 0, 4), uint64(vt), 4), nil
	case uint64:
		return FlagUint64, appendUint(make([]byte, 0, 8), vt, 8), nil
	case int:
		return FlagInt, appendUint(make([]byte, 0, 8), uint64(int64(vt)), 8), nil
	case uint:
		return FlagUint, appendUint(make([]byte, 0, 8), uint64(vt), 8), nil
	case float32:
		return FlagFloat32, appendUint(make([]byte, 0, 4), uint64(math.Float32bits(vt)), 4), nil
	case float64:
		return FlagFloat64, appendUint(make([]byte, 0, 8), math.Float64bits(vt), 8), nil
	case nil:
		return 0, nil, fmt.Errorf("%w: nil", ErrUnsupportedType)
	default:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
			return 0, nil, fmt.Errorf("%w: %s", ErrUnsupportedType, err.Error())
		}
		return FlagObject, buf.Bytes(), nil
	}
}

// Decode converts a stored payload back into the value it was encoded from.
func (Default) Decode(flags uint32, data []byte) (any, error) {
	switch flags {
	case FlagString:
		return string(data), nil
	case FlagBytes:
		return data, nil
	case FlagBool:
		if len(data) != 1 {
			return nil, ErrTranscoderMismatch
		}
		return data[0] != 0, nil
	case FlagInt8:
		if len(data) != 1 {
			return nil, ErrTranscoderMismatch
		}
		return int8(data[0]), nil
	case FlagInt16:
		u, err := readUint(data, 2)
		return int16(u), err
	case FlagInt32:
		u, err := readUint(data, 4)
		return int32(u), err
	case FlagInt64:
		u, err := readUint(data, 8)
		return int64(u), err
	case FlagUint8:
		if len(data) != 1 {
			return nil, ErrTranscoderMismatch
		}
		return data[0], nil
	case FlagUint16:
		u, err := readUint(data, 2)
		return uint16(u), err
	case FlagUint32:
		u, err := readUint(data, 4)
		return uint32(u), err
	case FlagUint64:
		return readUint(data, 8)
	case FlagInt:
		u, err := readUint(data, 8)
		return int(int64(u)), err
	case FlagUint:
		u, err := readUint(data, 8)
		return uint(u), err
	case FlagFloat32:
		u, err := readUint(data, 4)
		return math.Float32frombits(uint32(u)), err
	case FlagFloat64:
		u, err := readUint(data, 8)
		return math.Float64frombits(u), err
	case FlagObject:
		var v any
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrTranscoderMismatch, err.Error())
		}
		return v, nil
	default:
		return nil, ErrTranscoderMismatch
	}
}

// DecodeInto decodes a stored payload into out, which must be a non-nil
// pointer whose element type matches the stored flag.
func (d Default) DecodeInto(flags uint32, data []byte, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: out must be a non-nil pointer", ErrUnsupportedType)
	}

	v, err := d.Decode(flags, data)
	if err != nil {
		return err
	}

	dv := reflect.ValueOf(v)
	if !dv.Type().AssignableTo(rv.Elem().Type()) {
		return ErrTranscoderMismatch
	}
	rv.Elem().Set(dv)
	return nil
}

func appendUint(b []byte, u uint64, width int) []byte {
	switch width {
	case 2:
		b = binary.BigEndian.AppendUint16(b, uint16(u))
	case 4:
		b = binary.BigEndian.AppendUint32(b, uint32(u))
	default:
		b = binary.BigEndian.AppendUint64(b, u)
	}
	return b
}

func readUint(data []byte, width int) (uint64, error) {
	if len(data) != width {
		return 0, ErrTranscoderMismatch
	}
	switch width {
	case 2:
		return uint64(binary.BigEndian.Uint16(data)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(data)), nil
	default:
		return binary.BigEndian.Uint64(data), nil
	}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Transcoder{
		"default": func() Transcoder { return Default{} },
	}
)

// Register makes a transcoder available under name for config lookup.
func Register(name string, f func() Transcoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New returns a fresh transcoder registered under name.
func New(name string) (Transcoder, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transcoder: unknown transcoder %q", name)
	}
	return f(), nil
}
