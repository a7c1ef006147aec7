package correlate

import (
	"fmt"
	"strings"
)

// Frame gathers the packets of all channels that share one instrument timestamp.
type Frame struct {
	Index        int    // order in which the frame was first seen
	Number       uint32 // instrument timestamp shared by every packet
	Data         [][NumSamples]int8
	Received     []bool
	ReceiptTimes []string
}

// NewFrame starts an empty frame for nchan channels.
func NewFrame(nchan, index int, number uint32) *Frame {
	return &Frame{
		Index:        index,
		Number:       number,
		Data:         make([][NumSamples]int8, nchan),
		Received:     make([]bool, nchan),
		ReceiptTimes: make([]string, nchan),
	}
}

// Add stores p in the frame and reports whether the frame is now full. A
// second packet for the same channel replaces the first.
func (f *Frame) Add(p *Packet) (bool, error) {
	if p.Timestamp != f.Number {
		return false, fmt.Errorf("packet timestamp 0x%X added to frame 0x%X", p.Timestamp, f.Number)
	}
	ch := int(p.Antenna)
	if ch < 0 || ch >= len(f.Data) {
		return false, fmt.Errorf("packet antenna %d outside frame of %d channels", ch, len(f.Data))
	}
	f.Data[ch] = p.Samples
	f.ReceiptTimes[ch] = p.ReceiptTime
	f.Received[ch] = true
	return f.Full(), nil
}

// Packets returns the number of channels received so far.
func (f *Frame) Packets() int {
	n := 0
	for _, r := range f.Received {
		if r {
			n++
		}
	}
	return n
}

// Full tells whether every channel has been received.
func (f *Frame) Full() bool {
	return f.Packets() == len(f.Received)
}

func (f *Frame) String() string {
	var key strings.Builder
	for _, r := range f.Received {
		if r {
			key.WriteByte('1')
		} else {
			key.WriteByte('0')
		}
	}
	return fmt.Sprintf("Frame index %d number 0x%X: %d/%d traces received (%s)",
		f.Index, f.Number, f.Packets(), len(f.Received), key.String())
}
