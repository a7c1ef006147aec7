package suitcap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suitcase/suitcap/rawbin"
)

// scriptedSource replays a fixed list of datagrams. When they run out it
// calls onEmpty (if set) and then returns ctx.Err(), or io.EOF if ctx is
// still live.
type scriptedSource struct {
	datagrams [][]byte
	next      int
	onEmpty   func()
}

func (s *scriptedSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.datagrams) {
		if s.onEmpty != nil {
			s.onEmpty()
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	d := s.datagrams[s.next]
	s.next++
	return d, nil
}

// simulatedStream builds frames*channels timestream datagrams, channel 0
// first within each frame.
func simulatedStream(frames, channels int) [][]byte {
	var out [][]byte
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			hdr := FrameHeader{FrameType: TimestreamFrameType, Channel: uint8(c), WordLength: 0x800, Timestamp: uint32(1000 + f)}
			out = append(out, EncodeFrame(hdr, rampSamples(f+c)))
		}
	}
	return out
}

// steppingClock returns a clock that advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func testCaptureConfig(t *testing.T) CaptureConfig {
	settings := DefaultCaptureConfig()
	settings.OutputDir = t.TempDir()
	return settings
}

func TestCaptureThreeSessions(t *testing.T) {
	config := RunConfig{BaseName: "run", Sessions: 3, Frames: 2, Channels: 4}
	// A datagram of some other frame type arrives first, then the stream.
	junk := EncodeFrame(FrameHeader{FrameType: 0x50, Channel: 2}, rampSamples(0))
	datagrams := append([][]byte{junk}, simulatedStream(6, 4)...)
	source := &scriptedSource{datagrams: datagrams}

	var out bytes.Buffer
	c, err := NewCapture(config, testCaptureConfig(t), source, fileSinkFactory{kind: BinarySink}, &out)
	require.NoError(t, err)
	start := time.Date(2024, 7, 4, 23, 59, 0, 0, time.Local)
	c.Now = steppingClock(start, 10*time.Millisecond)
	pub := &recordingPublisher{}
	c.SetPublisher(pub)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, filepath.Join(c.Settings.OutputDir, "d20240704"), c.Dir)
	require.Len(t, c.Sessions, 3)
	for i, session := range c.Sessions {
		assert.Equal(t, 8, session.AcceptedRecords)
		assert.Equal(t, filepath.Join(c.Dir, []string{"run.0000.bin", "run.0001.bin", "run.0002.bin"}[i]), session.Path)
		for ch := 0; ch < 4; ch++ {
			assert.Equal(t, 2, session.ChannelCounts[ch])
		}

		r, err := rawbin.OpenReader(session.Path)
		require.NoError(t, err)
		assert.Equal(t, int32(8), r.TotalRecords)
		assert.Equal(t, int32(4), r.Channels)
		assert.Equal(t, 8, r.RecordsPresent)
		assert.False(t, r.Truncated())
		var rec rawbin.Record
		require.NoError(t, r.NextRecord(&rec))
		assert.Equal(t, uint32(1000+2*i), rec.Timestamp)
		assert.Equal(t, int8(0), rec.Antenna)
		r.Close()
	}
	assert.Equal(t, 1, c.Reporter.Rejected)
	assert.Equal(t, 25, c.Reporter.Datagrams)

	contents, err := os.ReadFile(c.RunLog)
	require.NoError(t, err)
	text := string(contents)
	assert.Equal(t, 3, strings.Count(text, "File start time:"))
	for _, name := range []string{"run.0000.bin", "run.0001.bin", "run.0002.bin"} {
		assert.Contains(t, text, filepath.Join(c.Dir, name)+"\n")
	}
	assert.Contains(t, text, "Run ID: "+c.RunID+"\n")
	assert.Contains(t, text, "Number channels: 4\n")
	assert.Contains(t, text, "Number frames:  2\n")
	assert.Contains(t, text, "Run end time: ")
	assert.NotContains(t, text, "interrupted")

	// One open and one close event per session.
	assert.Equal(t, 6, strings.Count(strings.Join(pub.tags, " "), SessionTag))
	assert.Contains(t, out.String(), "Writing file 3/3")
}

func TestCaptureRejectedFrameDoesNotCount(t *testing.T) {
	config := RunConfig{BaseName: "one", Sessions: 1, Frames: 1, Channels: 2}
	stream := simulatedStream(1, 2)
	junk := []byte{0x1F, 0xFF, 0xFF}
	source := &scriptedSource{datagrams: [][]byte{junk, stream[0], {}, stream[1]}}
	var out bytes.Buffer
	c, err := NewCapture(config, testCaptureConfig(t), source, fileSinkFactory{kind: BinarySink}, &out)
	require.NoError(t, err)
	c.Config.Verbose = true
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 2, c.Sessions[0].AcceptedRecords)
	assert.Equal(t, 2, c.Reporter.Rejected)
	assert.Contains(t, out.String(), "Dropped 3-byte datagram")
}

func TestCaptureRejectsShortFrames(t *testing.T) {
	config := RunConfig{BaseName: "short", Sessions: 1, Frames: 1, Channels: 1}
	short := EncodeFrame(FrameHeader{FrameType: TimestreamFrameType}, rampSamples(0)[:100])
	full := simulatedStream(1, 1)[0]
	settings := testCaptureConfig(t)
	settings.ShortFrames = "reject"
	source := &scriptedSource{datagrams: [][]byte{short, full}}
	c, err := NewCapture(config, settings, source, fileSinkFactory{kind: TableSink}, io.Discard)
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 1, c.Reporter.Short)
	assert.Equal(t, 0, c.Reporter.Rejected)
	assert.Equal(t, 1, c.Sessions[0].AcceptedRecords)
	assert.True(t, strings.HasSuffix(c.Sessions[0].Path, "short.0000.tbl"))
}

func TestCaptureInterrupt(t *testing.T) {
	config := RunConfig{BaseName: "int", Sessions: 2, Frames: 4, Channels: 2}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Only 5 of the 8 records of the first session arrive before the interrupt.
	source := &scriptedSource{datagrams: simulatedStream(4, 2)[:5], onEmpty: cancel}
	c, err := NewCapture(config, testCaptureConfig(t), source, fileSinkFactory{kind: BinarySink}, io.Discard)
	require.NoError(t, err)
	err = c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run after interrupt returned %v, want context.Canceled", err)
	}
	require.Len(t, c.Sessions, 1)
	assert.Equal(t, 5, c.Sessions[0].AcceptedRecords)

	// The header keeps the declared quota, but every accepted record was flushed.
	r, err := rawbin.OpenReader(c.Sessions[0].Path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int32(8), r.TotalRecords)
	assert.Equal(t, 5, r.RecordsPresent)

	contents, err := os.ReadFile(c.RunLog)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "(interrupted)\n")
}

func TestCaptureSourceFailureIsFatal(t *testing.T) {
	config := RunConfig{BaseName: "fail", Sessions: 1, Frames: 4, Channels: 1}
	source := &scriptedSource{datagrams: simulatedStream(2, 1)}
	c, err := NewCapture(config, testCaptureConfig(t), source, fileSinkFactory{kind: BinarySink}, io.Discard)
	require.NoError(t, err)
	err = c.Run(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	contents, err := os.ReadFile(c.RunLog)
	require.NoError(t, err)
	assert.NotContains(t, string(contents), "Run end time")
}

func TestNewCaptureValidates(t *testing.T) {
	settings := DefaultCaptureConfig()
	good := RunConfig{BaseName: "x", Sessions: 1, Frames: 1, Channels: 1}
	_, err := NewCapture(good, settings, &scriptedSource{}, fileSinkFactory{kind: BinarySink}, io.Discard)
	assert.NoError(t, err)

	for _, bad := range []RunConfig{
		{BaseName: "", Sessions: 1, Frames: 1, Channels: 1},
		{BaseName: "x", Sessions: 0, Frames: 1, Channels: 1},
		{BaseName: "x", Sessions: 1, Frames: -1, Channels: 1},
		{BaseName: "x", Sessions: 1, Frames: 1, Channels: 0},
	} {
		if _, err := NewCapture(bad, settings, &scriptedSource{}, fileSinkFactory{kind: BinarySink}, io.Discard); err == nil {
			t.Errorf("NewCapture(%+v) succeeded, want error", bad)
		}
	}
	settings.ShortFrames = "bogus"
	_, err = NewCapture(good, settings, &scriptedSource{}, fileSinkFactory{kind: BinarySink}, io.Discard)
	assert.Error(t, err)
}
