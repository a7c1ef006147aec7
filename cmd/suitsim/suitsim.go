// Command suitsim sends simulated timestream frames to a UDP endpoint, for
// exercising suitcapture without the instrument.
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"time"

	"github.com/suitcase/suitcap"
)

// toneSamples fills one channel's samples with a complex tone whose phase
// depends on the channel, so correlated output is not trivial.
func toneSamples(channel int, cycles float64) []int8 {
	s := make([]int8, suitcap.NumSamples)
	phase := 0.5 * float64(channel)
	for k := 0; k < suitcap.NumSamples/2; k++ {
		theta := 2*math.Pi*cycles*float64(k)/float64(suitcap.NumSamples/2) + phase
		s[2*k] = int8(math.Round(60 * math.Cos(theta)))
		s[2*k+1] = int8(math.Round(60 * math.Sin(theta)))
	}
	return s
}

// generate writes nframes frames of nchan channels to w, channel 0 first in
// each frame, with the timestamp incremented once per frame. Every junkEvery
// frames (if > 0) a non-timestream datagram is sent as well. A positive
// period paces the frames.
func generate(w io.Writer, nframes, nchan int, start uint32, period time.Duration, junkEvery int) (int, error) {
	samples := make([][]int8, nchan)
	for c := range samples {
		samples[c] = toneSamples(c, 17)
	}
	sent := 0
	var ticker *time.Ticker
	if period > 0 {
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}
	for f := 0; f < nframes; f++ {
		if junkEvery > 0 && f%junkEvery == junkEvery-1 {
			junk := suitcap.EncodeFrame(suitcap.FrameHeader{FrameType: 0x10}, nil)
			if _, err := w.Write(junk); err != nil {
				return sent, err
			}
			sent++
		}
		for c := 0; c < nchan; c++ {
			hdr := suitcap.FrameHeader{
				FrameType:  suitcap.TimestreamFrameType,
				Channel:    uint8(c),
				StreamID:   0x1,
				WordLength: suitcap.NumSamples,
				Timestamp:  start + uint32(f),
			}
			if _, err := w.Write(suitcap.EncodeFrame(hdr, samples[c])); err != nil {
				return sent, err
			}
			sent++
		}
		if ticker != nil {
			<-ticker.C
		}
	}
	return sent, nil
}

func main() {
	var nframes, nchan, junk int
	var rate float64
	var start uint
	flag.IntVar(&nframes, "n", 1000, "Number of frames to send")
	flag.IntVar(&nchan, "c", 4, "Number of antenna channels per frame (1-16)")
	flag.Float64Var(&rate, "rate", 100, "Frames per second (0 means as fast as possible)")
	flag.UintVar(&start, "t", 0, "Timestamp of the first frame")
	flag.IntVar(&junk, "junk", 0, "Also send a non-timestream datagram every N frames (0 means never)")
	flag.Usage = func() {
		fmt.Println("suitsim, for sending simulated timestream frames")
		fmt.Println("Usage: suitsim [flags] host:port")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 || nchan < 1 || nchan > suitcap.MaxChannels {
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("udp", flag.Arg(0))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	var period time.Duration
	if rate > 0 {
		period = time.Duration(float64(time.Second) / rate)
	}
	sent, err := generate(conn, nframes, nchan, uint32(start), period, junk)
	fmt.Printf("Sent %d datagrams to %s\n", sent, flag.Arg(0))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}
