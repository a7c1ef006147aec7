package suitcap

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// StatusReport is one throughput summary. It is printed to the console and,
// when a Publisher is attached, published with StatusTag.
type StatusReport struct {
	Time        string
	Session     int // 1-based session number
	Sessions    int
	Accepted    int
	Expected    int
	ReceiptTime string // of the most recent accepted record
	Datagrams   int
	Rejected    int
	Short       int
	Bytes       int
	Channels    [MaxChannels]int // accepted records per channel, current session
}

// Reporter is the diagnostics state carried by the capture loop. It is not a
// separate goroutine: Observe is called once per accepted record and decides
// whether to print anything.
type Reporter struct {
	out       io.Writer
	interval  time.Duration
	window    int
	publisher Publisher

	lastReport time.Time
	echoed     int // per-packet lines printed since the last report
	echoing    bool
	Reports    int // number of reports printed

	Datagrams int
	Rejected  int
	Short     int
	Bytes     int
}

// NewReporter returns a Reporter that prints at most one report per interval,
// each followed by up to window per-packet lines. The first report can come
// no sooner than interval after start.
func NewReporter(out io.Writer, interval time.Duration, window int, start time.Time) *Reporter {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Reporter{out: out, interval: interval, window: window, lastReport: start}
}

// SetPublisher attaches a status publisher; nil detaches it.
func (r *Reporter) SetPublisher(p Publisher) {
	r.publisher = p
}

// CountDatagram counts one received datagram of n bytes.
func (r *Reporter) CountDatagram(n int) {
	r.Datagrams++
	r.Bytes += n
}

// CountRejected counts one datagram that was not a timestream frame.
func (r *Reporter) CountRejected() { r.Rejected++ }

// CountShort counts one timestream frame rejected for being short.
func (r *Reporter) CountShort() { r.Short++ }

// Observe updates the reporter after rec was accepted into session. A report
// is printed when at least the interval has passed since the previous one;
// then the reporting record and the next window-1 records are echoed one
// line each. Observe returns true if it printed a report.
func (r *Reporter) Observe(now time.Time, hdr FrameHeader, rec *TimestreamRecord, session *CaptureSession, nsessions int) bool {
	reported := false
	if now.Sub(r.lastReport) >= r.interval {
		r.lastReport = now
		r.report(now, rec, session, nsessions)
		r.echoed = 0
		r.echoing = true
		reported = true
	}
	if r.echoing {
		if r.echoed < r.window {
			fmt.Fprintf(r.out, "%3d, %X, %X, %X\n", r.echoed, hdr.Channel, hdr.WordLength, hdr.Timestamp)
			r.echoed++
		}
		if r.echoed >= r.window {
			r.echoing = false
		}
	}
	return reported
}

func (r *Reporter) report(now time.Time, rec *TimestreamRecord, session *CaptureSession, nsessions int) {
	r.Reports++
	status := StatusReport{
		Time:        now.Format(ReceiptTimeLayout),
		Session:     session.Index + 1,
		Sessions:    nsessions,
		Accepted:    session.AcceptedRecords,
		Expected:    session.ExpectedRecords,
		ReceiptTime: rec.ReceiptTime,
		Datagrams:   r.Datagrams,
		Rejected:    r.Rejected,
		Short:       r.Short,
		Bytes:       r.Bytes,
		Channels:    session.ChannelCounts,
	}
	fmt.Fprint(r.out, status.String())
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(StatusTag, status); err != nil {
		ProblemLogger.Printf("Could not publish status: %v", err)
	}
}

// String formats the report for the operator console.
func (s StatusReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "At: packet number %d/%d; file number %d/%d .\n", s.Accepted, s.Expected, s.Session, s.Sessions)
	fmt.Fprintf(&b, "%s\n", s.ReceiptTime)
	fmt.Fprintf(&b, "Datagrams %d (%d bytes), rejected %d, short %d\n", s.Datagrams, s.Bytes, s.Rejected, s.Short)
	b.WriteString("Per channel:")
	for ch, n := range s.Channels {
		if n > 0 {
			fmt.Fprintf(&b, " %d:%d", ch, n)
		}
	}
	b.WriteString("\n+++++++++++++++\n")
	return b.String()
}
