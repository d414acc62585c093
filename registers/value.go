package registers

import "encoding/binary"

// Value is the tagged sum type over every shape a register read can
// produce: unsigned/signed integers of 1/2/4/8 bytes, an 80-bit long
// double (x87 ST register), and an 8- or 16-byte vector (MMX register, or
// XMM register). Implementations are picked by Format+Size, never by
// runtime type inspection of a caller-supplied value.
type Value interface {
	// Bytes returns the value's little-endian encoding at the value's own
	// width. This equals the register's catalogued size except for
	// LongDouble80, whose 10 bytes are narrower than the 16-byte st slot.
	Bytes() []byte
}

type (
	Uint8Value  uint8
	Uint16Value uint16
	Uint32Value uint32
	Uint64Value uint64
	Int8Value   int8
	Int16Value  int16
	Int32Value  int32
	Int64Value  int64
	// LongDouble80 holds the raw 10-byte x87 extended-precision encoding;
	// Go has no native 80-bit float type so callers get the bytes.
	LongDouble80 [10]byte
	// Vector128 is a 16-byte XMM register value.
	Vector128 [16]byte
	// Vector64 is an 8-byte MMX register value (the low qword of the
	// aliased ST register).
	Vector64 [8]byte
)

func (v Uint8Value) Bytes() []byte   { return []byte{byte(v)} }
func (v Int8Value) Bytes() []byte    { return []byte{byte(v)} }
func (v LongDouble80) Bytes() []byte { return v[:] }
func (v Vector128) Bytes() []byte    { return v[:] }
func (v Vector64) Bytes() []byte     { return v[:] }

func (v Uint16Value) Bytes() []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}
func (v Uint32Value) Bytes() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}
func (v Uint64Value) Bytes() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}
func (v Int16Value) Bytes() []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}
func (v Int32Value) Bytes() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}
func (v Int64Value) Bytes() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

// FromBytes decodes raw register bytes per the catalog entry's declared
// format and size. raw must be at least info.Size bytes.
func FromBytes(info Info, raw []byte) Value {
	raw = raw[:info.Size]
	switch info.Format {
	case FormatUint:
		switch info.Size {
		case 1:
			return Uint8Value(raw[0])
		case 2:
			return Uint16Value(binary.LittleEndian.Uint16(raw))
		case 4:
			return Uint32Value(binary.LittleEndian.Uint32(raw))
		case 8:
			return Uint64Value(binary.LittleEndian.Uint64(raw))
		}
	case FormatInt:
		switch info.Size {
		case 1:
			return Int8Value(int8(raw[0]))
		case 2:
			return Int16Value(int16(binary.LittleEndian.Uint16(raw)))
		case 4:
			return Int32Value(int32(binary.LittleEndian.Uint32(raw)))
		case 8:
			return Int64Value(int64(binary.LittleEndian.Uint64(raw)))
		}
	case FormatLongDouble:
		var v LongDouble80
		copy(v[:], raw)
		return v
	case FormatVector:
		if info.Size == 8 {
			var v Vector64
			copy(v[:], raw)
			return v
		}
		var v Vector128
		copy(v[:], raw)
		return v
	}
	panic("registers: unreachable format/size combination in catalog")
}

// ToUint64 widens any integer-shaped value to a uint64, sign-extending
// signed values. It panics for LongDouble80/Vector128, which have no
// scalar interpretation.
func ToUint64(v Value) uint64 {
	switch t := v.(type) {
	case Uint8Value:
		return uint64(t)
	case Uint16Value:
		return uint64(t)
	case Uint32Value:
		return uint64(t)
	case Uint64Value:
		return uint64(t)
	case Int8Value:
		return uint64(int64(t))
	case Int16Value:
		return uint64(int64(t))
	case Int32Value:
		return uint64(int64(t))
	case Int64Value:
		return uint64(int64(t))
	default:
		panic("registers: value has no scalar representation")
	}
}
