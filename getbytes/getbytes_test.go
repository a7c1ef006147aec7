package getbytes

import (
	"encoding/hex"
	"testing"
)

func TestFromGetBytes(t *testing.T) {
	encodedStr := hex.EncodeToString(FromSliceInt8([]int8{0x00, 0x0A, 0x0B, 0x0C, 0x0D, 0x0F, 0x01, 0x02}))
	if expectStr := "000a0b0c0d0f0102"; encodedStr != expectStr {
		t.Errorf("want %v, have %v", expectStr, encodedStr)
	}
	encodedStr = hex.EncodeToString(FromSliceInt8([]int8{-1, -128, 127}))
	if expectStr := "ff807f"; encodedStr != expectStr {
		t.Errorf("want %v, have %v", expectStr, encodedStr)
	}
	if b := FromSliceInt8(nil); len(b) != 0 {
		t.Errorf("FromSliceInt8(nil) has length %d, want 0", len(b))
	}
}

func TestToSliceInt8(t *testing.T) {
	raw := []byte{0x00, 0x7f, 0x80, 0xff}
	want := []int8{0, 127, -128, -1}
	got := ToSliceInt8(raw)
	if len(got) != len(want) {
		t.Fatalf("ToSliceInt8 length %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ToSliceInt8()[%d]=%d, want %d", i, got[i], want[i])
		}
	}

	// The result aliases the input.
	raw[0] = 0x05
	if got[0] != 5 {
		t.Errorf("ToSliceInt8 result does not alias its input")
	}
	if b := ToSliceInt8([]byte{}); len(b) != 0 {
		t.Errorf("ToSliceInt8(empty) has length %d, want 0", len(b))
	}
}
