package suitcap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Frame layout constants.
const (
	MaxPacketSize = 32767 // largest datagram the listener will read
	HeaderLength  = 9     // bytes of frame header before the samples
	NumSamples    = 2048  // samples per timestream record
	FrameLength   = HeaderLength + NumSamples

	// TimestreamFrameType is the high nibble of byte 0 that marks a timestream frame.
	TimestreamFrameType uint8 = 0xA0
)

// ReceiptTimeLayout formats host receipt times with microsecond precision.
// Formatted times are always 26 characters long.
const ReceiptTimeLayout = "2006-01-02 15:04:05.000000"

// ErrRejected is returned by Decode for any frame that is not a timestream frame.
// Such frames are expected on a shared port and are dropped silently.
var ErrRejected = errors.New("not a timestream frame")

// ErrShortFrame is returned by Decode, under the RejectShortFrames policy, for
// timestream frames too short to hold a full set of samples.
var ErrShortFrame = errors.New("timestream frame shorter than header plus samples")

// FrameHeader represents the 9-byte header of an instrument frame.
type FrameHeader struct {
	FrameType  uint8 // high nibble of byte 0, low nibble cleared
	Channel    uint8 // antenna channel 0-15
	StreamID   uint16
	WordLength uint16
	Timestamp  uint32 // instrument clock ticks
}

// String returns a one-line description of the header.
func (h FrameHeader) String() string {
	return fmt.Sprintf("Frame type 0x%X channel %d stream 0x%X word length 0x%X timestamp 0x%X",
		h.FrameType, h.Channel, h.StreamID, h.WordLength, h.Timestamp)
}

// ParseHeader decodes the header at the start of raw. Bytes missing from a
// datagram shorter than HeaderLength read as zero.
func ParseHeader(raw []byte) FrameHeader {
	var b [HeaderLength]byte
	copy(b[:], raw)
	return FrameHeader{
		FrameType:  b[0] & 0xF0,
		Channel:    b[0] & 0x0F,
		StreamID:   binary.BigEndian.Uint16(b[1:3]),
		WordLength: binary.BigEndian.Uint16(b[3:5]),
		Timestamp:  binary.BigEndian.Uint32(b[5:9]),
	}
}

// TimestreamRecord is the unit persisted for every accepted frame.
type TimestreamRecord struct {
	Timestamp   uint32
	Antenna     int8
	Samples     [NumSamples]int8
	ReceiptTime string
}

// ShortFramePolicy says what Decode does with frames shorter than FrameLength.
type ShortFramePolicy int

// Choices of ShortFramePolicy
const (
	ZeroPadShortFrames ShortFramePolicy = iota // missing samples read as zero
	RejectShortFrames                          // return ErrShortFrame
)

// ParseShortFramePolicy converts the config file names "zeropad" and "reject".
func ParseShortFramePolicy(name string) (ShortFramePolicy, error) {
	switch name {
	case "", "zeropad":
		return ZeroPadShortFrames, nil
	case "reject":
		return RejectShortFrames, nil
	}
	return ZeroPadShortFrames, fmt.Errorf("unknown short frame policy '%s' (want zeropad or reject)", name)
}

// Decoder turns raw datagrams into TimestreamRecords.
type Decoder struct {
	Policy ShortFramePolicy
	Now    func() time.Time // clock used for receipt times; time.Now if nil
}

// Decode parses raw into rec, reusing rec's storage. It returns the parsed
// header even when the frame is rejected. Decode never reads past len(raw).
func (d *Decoder) Decode(raw []byte, rec *TimestreamRecord) (FrameHeader, error) {
	hdr := ParseHeader(raw)
	if len(raw) == 0 || hdr.FrameType != TimestreamFrameType {
		return hdr, ErrRejected
	}
	if len(raw) < FrameLength && d.Policy == RejectShortFrames {
		return hdr, ErrShortFrame
	}

	var payload []byte
	if len(raw) > HeaderLength {
		payload = raw[HeaderLength:]
	}
	n := min(len(payload), NumSamples)
	for i := 0; i < n; i++ {
		rec.Samples[i] = int8(payload[i])
	}
	clear(rec.Samples[n:])

	rec.Timestamp = hdr.Timestamp
	rec.Antenna = int8(hdr.Channel)
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	rec.ReceiptTime = now().Format(ReceiptTimeLayout)
	return hdr, nil
}

// EncodeFrame builds a datagram from a header and samples. The header's
// FrameType and Channel are packed into byte 0. Fewer than NumSamples samples
// produce a short frame.
func EncodeFrame(hdr FrameHeader, samples []int8) []byte {
	buf := make([]byte, HeaderLength+len(samples))
	buf[0] = (hdr.FrameType & 0xF0) | (hdr.Channel & 0x0F)
	binary.BigEndian.PutUint16(buf[1:3], hdr.StreamID)
	binary.BigEndian.PutUint16(buf[3:5], hdr.WordLength)
	binary.BigEndian.PutUint32(buf[5:9], hdr.Timestamp)
	for i, s := range samples {
		buf[HeaderLength+i] = byte(s)
	}
	return buf
}
