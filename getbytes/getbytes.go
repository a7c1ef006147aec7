// Package getbytes converts sample slices to and from raw bytes without copying.
// The results alias the input: modifying one modifies the other.
package getbytes

import (
	"unsafe"
)

// FromSliceInt8 converts a []int8 to []byte using unsafe
func FromSliceInt8(d []int8) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), len(d))
}

// ToSliceInt8 converts a []byte to []int8 using unsafe
func ToSliceInt8(b []byte) []int8 {
	if len(b) == 0 {
		return []int8{}
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&b[0])), len(b))
}

