package suitcap

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func rampSamples(offset int) []int8 {
	s := make([]int8, NumSamples)
	for i := range s {
		s[i] = int8(i + offset)
	}
	return s
}

// TestRejectNonTimestream checks that every frame type tag except 0xA is rejected.
func TestRejectNonTimestream(t *testing.T) {
	d := Decoder{}
	var rec TimestreamRecord
	for tag := 0; tag < 16; tag++ {
		for channel := 0; channel < 16; channel++ {
			raw := make([]byte, FrameLength)
			raw[0] = byte(tag<<4 | channel)
			_, err := d.Decode(raw, &rec)
			if tag == 0xA {
				if err != nil {
					t.Errorf("Decode(tag 0x%X, channel %d) returned %v, want success", tag, channel, err)
				}
				continue
			}
			if !errors.Is(err, ErrRejected) {
				t.Errorf("Decode(tag 0x%X) returned %v, want ErrRejected", tag, err)
			}
		}
	}
	if _, err := d.Decode(nil, &rec); !errors.Is(err, ErrRejected) {
		t.Errorf("Decode(empty) returned %v, want ErrRejected", err)
	}
}

func TestDecodeFields(t *testing.T) {
	when := time.Date(2024, 3, 5, 12, 34, 56, 789012345, time.Local)
	d := Decoder{Now: fixedClock(when)}

	var tests = []struct {
		channel   uint8
		stream    uint16
		wordlen   uint16
		timestamp uint32
	}{
		{0, 0, 0, 0},
		{3, 0x1234, 0x0008, 0xdeadbeef},
		{15, 0xffff, 0xffff, 0xffffffff},
		{7, 0x0100, 0x0200, 0x01020304},
	}
	for _, test := range tests {
		hdr := FrameHeader{FrameType: TimestreamFrameType, Channel: test.channel,
			StreamID: test.stream, WordLength: test.wordlen, Timestamp: test.timestamp}
		raw := EncodeFrame(hdr, rampSamples(int(test.channel)))

		var rec TimestreamRecord
		got, err := d.Decode(raw, &rec)
		require.NoError(t, err)
		assert.Equal(t, hdr, got)
		if rec.Antenna != int8(raw[0]&0x0F) {
			t.Errorf("antenna = %d, want raw[0]&0x0F = %d", rec.Antenna, raw[0]&0x0F)
		}
		if want := binary.BigEndian.Uint32(raw[5:9]); rec.Timestamp != want {
			t.Errorf("timestamp = 0x%x, want big-endian bytes 5-8 = 0x%x", rec.Timestamp, want)
		}
		for i, s := range rampSamples(int(test.channel)) {
			if rec.Samples[i] != s {
				t.Fatalf("sample %d = %d, want %d", i, rec.Samples[i], s)
			}
		}
		assert.Equal(t, "2024-03-05 12:34:56.789012", rec.ReceiptTime)
		assert.Len(t, rec.ReceiptTime, 26)
	}
}

func TestHeaderByteOrder(t *testing.T) {
	raw := []byte{0xA5, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	hdr := ParseHeader(raw)
	assert.Equal(t, uint8(0xA0), hdr.FrameType)
	assert.Equal(t, uint8(5), hdr.Channel)
	assert.Equal(t, uint16(0x1234), hdr.StreamID)
	assert.Equal(t, uint16(0x5678), hdr.WordLength)
	assert.Equal(t, uint32(0x9abcdef0), hdr.Timestamp)

	// A header cut short reads as zeros past the end.
	hdr = ParseHeader(raw[:6])
	assert.Equal(t, uint32(0x9a000000), hdr.Timestamp)
}

func TestShortFrames(t *testing.T) {
	hdr := FrameHeader{FrameType: TimestreamFrameType, Channel: 2, Timestamp: 99}
	short := EncodeFrame(hdr, []int8{1, 2, 3})

	// Fill the record with junk to be sure nothing stale survives.
	var rec TimestreamRecord
	for i := range rec.Samples {
		rec.Samples[i] = -1
	}
	d := Decoder{Policy: ZeroPadShortFrames}
	_, err := d.Decode(short, &rec)
	require.NoError(t, err)
	assert.Equal(t, int8(1), rec.Samples[0])
	assert.Equal(t, int8(3), rec.Samples[2])
	for i := 3; i < NumSamples; i++ {
		if rec.Samples[i] != 0 {
			t.Fatalf("zero-padded sample %d = %d, want 0", i, rec.Samples[i])
		}
	}

	// Header only, no samples at all
	_, err = d.Decode(short[:HeaderLength], &rec)
	require.NoError(t, err)
	assert.Equal(t, int8(0), rec.Samples[0])

	d.Policy = RejectShortFrames
	if _, err := d.Decode(short, &rec); !errors.Is(err, ErrShortFrame) {
		t.Errorf("Decode(short frame) with reject policy returned %v, want ErrShortFrame", err)
	}
	full := EncodeFrame(hdr, rampSamples(0))
	_, err = d.Decode(full, &rec)
	assert.NoError(t, err)

	// Longer than needed is fine; the excess is ignored.
	long := append(full, 1, 2, 3, 4)
	_, err = d.Decode(long, &rec)
	assert.NoError(t, err)
}

func TestParseShortFramePolicy(t *testing.T) {
	var tests = []struct {
		name    string
		want    ShortFramePolicy
		wanterr bool
	}{
		{"", ZeroPadShortFrames, false},
		{"zeropad", ZeroPadShortFrames, false},
		{"reject", RejectShortFrames, false},
		{"truncate", ZeroPadShortFrames, true},
	}
	for _, test := range tests {
		p, err := ParseShortFramePolicy(test.name)
		if (err != nil) != test.wanterr {
			t.Errorf("ParseShortFramePolicy(%q) error %v, want error %v", test.name, err, test.wanterr)
		}
		if p != test.want {
			t.Errorf("ParseShortFramePolicy(%q) = %v, want %v", test.name, p, test.want)
		}
	}
}
