package registers

import (
	"bytes"
	"testing"
)

func TestUint64ValueBytesRoundTrip(t *testing.T) {
	v := Uint64Value(0x0102030405060708)
	want := []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if got := v.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("Bytes() = % x, want % x", got, want)
	}
}

func TestFromBytesUint(t *testing.T) {
	info := Info{Format: FormatUint, Size: 4}
	v := FromBytes(info, []byte{0x01, 0x00, 0x00, 0x00, 0xff})
	got, ok := v.(Uint32Value)
	if !ok || got != 1 {
		t.Fatalf("FromBytes = %#v, want Uint32Value(1)", v)
	}
}

func TestFromBytesSignExtendsOnDecodeNotWiden(t *testing.T) {
	info := Info{Format: FormatInt, Size: 1}
	v := FromBytes(info, []byte{0xff})
	got, ok := v.(Int8Value)
	if !ok || got != -1 {
		t.Fatalf("FromBytes = %#v, want Int8Value(-1)", v)
	}
}

func TestToUint64SignExtends(t *testing.T) {
	if got := ToUint64(Int8Value(-1)); got != 0xffffffffffffffff {
		t.Fatalf("ToUint64(Int8Value(-1)) = %#x, want all-ones", got)
	}
	if got := ToUint64(Uint16Value(0xabcd)); got != 0xabcd {
		t.Fatalf("ToUint64(Uint16Value(0xabcd)) = %#x, want 0xabcd", got)
	}
}

func TestToUint64PanicsOnVector(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("ToUint64 on a Vector128 should panic")
		}
	}()
	ToUint64(Vector128{})
}

func TestLongDoubleAndVectorBytesAreExactWidth(t *testing.T) {
	var ld LongDouble80
	if len(ld.Bytes()) != 10 {
		t.Fatalf("LongDouble80.Bytes() length = %d, want 10", len(ld.Bytes()))
	}
	var v Vector128
	if len(v.Bytes()) != 16 {
		t.Fatalf("Vector128.Bytes() length = %d, want 16", len(v.Bytes()))
	}
	var mm Vector64
	if len(mm.Bytes()) != 8 {
		t.Fatalf("Vector64.Bytes() length = %d, want 8", len(mm.Bytes()))
	}
}

func TestFromBytesPicksVectorWidthBySize(t *testing.T) {
	mm := FromBytes(Info{Format: FormatVector, Size: 8}, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if _, ok := mm.(Vector64); !ok {
		t.Fatalf("FromBytes with Size=8 FormatVector = %T, want Vector64", mm)
	}
	if len(mm.Bytes()) != 8 {
		t.Fatalf("mm register value round-trips to %d bytes, want 8 (register write would fail otherwise)", len(mm.Bytes()))
	}

	xmm := FromBytes(Info{Format: FormatVector, Size: 16}, make([]byte, 16))
	if _, ok := xmm.(Vector128); !ok {
		t.Fatalf("FromBytes with Size=16 FormatVector = %T, want Vector128", xmm)
	}
}
