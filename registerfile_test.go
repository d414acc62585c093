package sdbgo

import (
	"bytes"
	"testing"

	"sdbgo/registers"
)

// TestWriteLongDoubleRegisterAcceptsShortEncoding verifies that writing an
// st0-st7 register, whose LongDouble80 encoding (10 bytes) is shorter than
// the register's catalogued 16-byte FXSAVE slot, succeeds and is readable
// back rather than being rejected by the register-size check.
func TestWriteLongDoubleRegisterAcceptsShortEncoding(t *testing.T) {
	path := findSleepBinary(t)

	proc, err := Launch(path, LaunchOptions{Args: []string{"5"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer proc.Close()

	var val registers.LongDouble80
	for i := range val {
		val[i] = byte(i + 1)
	}

	if err := proc.Registers().WriteByName("st0", val); err != nil {
		t.Fatalf("WriteByName(st0): %v", err)
	}

	got, err := proc.Registers().ReadByName("st0")
	if err != nil {
		t.Fatalf("ReadByName(st0): %v", err)
	}
	gotLD, ok := got.(registers.LongDouble80)
	if !ok {
		t.Fatalf("ReadByName(st0) returned %T, want LongDouble80", got)
	}
	if !bytes.Equal(gotLD[:], val[:]) {
		t.Fatalf("st0 read back %#v, want %#v", gotLD, val)
	}
}
