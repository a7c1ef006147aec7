package suitcap

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	tags []string
	msgs []any
}

func (p *recordingPublisher) Publish(tag string, v any) error {
	p.tags = append(p.tags, tag)
	p.msgs = append(p.msgs, v)
	return nil
}

func TestReporterOncePerBoundary(t *testing.T) {
	var out bytes.Buffer
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewReporter(&out, 2*time.Second, 0, start)
	session := &CaptureSession{ExpectedRecords: 1000}
	rec := &TimestreamRecord{}
	hdr := FrameHeader{}

	// Records every 2 seconds: one report each.
	for i := 1; i <= 5; i++ {
		assert.True(t, r.Observe(start.Add(time.Duration(2*i)*time.Second), hdr, rec, session, 1))
	}
	assert.Equal(t, 5, r.Reports)

	// Many records inside one interval: at most one report.
	base := start.Add(10 * time.Second)
	reports := 0
	for i := 1; i <= 100; i++ {
		if r.Observe(base.Add(time.Duration(i)*30*time.Millisecond), hdr, rec, session, 1) {
			reports++
		}
	}
	assert.Equal(t, 1, reports)
	assert.Equal(t, 6, r.Reports)
	assert.Equal(t, 6, strings.Count(out.String(), "+++++++++++++++\n"))
}

func TestReporterEchoWindow(t *testing.T) {
	var out bytes.Buffer
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewReporter(&out, 2*time.Second, 3, start)
	pub := &recordingPublisher{}
	r.SetPublisher(pub)
	session := &CaptureSession{Index: 1, ExpectedRecords: 8, AcceptedRecords: 4}
	session.ChannelCounts[2] = 4
	rec := &TimestreamRecord{ReceiptTime: "2024-01-01 00:00:02.000000"}
	r.CountDatagram(2057)
	r.CountRejected()

	// No report yet, so nothing is echoed.
	r.Observe(start.Add(time.Second), FrameHeader{Channel: 1}, rec, session, 3)
	assert.Empty(t, out.String())

	for i := 0; i < 6; i++ {
		now := start.Add(2*time.Second + time.Duration(i)*time.Millisecond)
		r.Observe(now, FrameHeader{Channel: uint8(i), WordLength: 0x10, Timestamp: uint32(0xA0 + i)}, rec, session, 3)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "At: packet number 4/8; file number 2/3 .", lines[0])
	assert.Equal(t, "2024-01-01 00:00:02.000000", lines[1])
	assert.Equal(t, "Datagrams 1 (2057 bytes), rejected 1, short 0", lines[2])
	assert.Equal(t, "Per channel: 2:4", lines[3])
	assert.Equal(t, "+++++++++++++++", lines[4])
	assert.Equal(t, "  0, 0, 10, A0", lines[5])
	assert.Equal(t, "  1, 1, 10, A1", lines[6])
	assert.Equal(t, "  2, 2, 10, A2", lines[7])

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, StatusTag, pub.tags[0])
	status := pub.msgs[0].(StatusReport)
	assert.Equal(t, 2, status.Session)
	assert.Equal(t, 4, status.Channels[2])
}
