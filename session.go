package suitcap

import (
	"errors"
	"fmt"
	"time"
)

// MaxChannels is the number of distinct antenna channels a 4-bit field can name.
const MaxChannels = 16

// CaptureSession is one bounded run that writes one output file.
type CaptureSession struct {
	Index           int
	Path            string
	ExpectedRecords int
	AcceptedRecords int
	Channels        int
	Start           time.Time

	// ChannelCounts counts accepted records per antenna channel. The quota
	// is never checked against these: a skewed stream fills a session anyway.
	ChannelCounts [MaxChannels]int
}

// Full tells whether the session has accepted its quota of records.
func (s *CaptureSession) Full() bool {
	return s.AcceptedRecords >= s.ExpectedRecords
}

// ErrSessionFull is returned by SessionWriter.Append once the quota is reached.
var ErrSessionFull = errors.New("session has already accepted its expected record count")

// SessionWriter owns one open Sink for the length of one CaptureSession.
type SessionWriter struct {
	session *CaptureSession
	sink    Sink
	open    bool
}

// OpenSession opens sink for session, which persists the session metadata.
func OpenSession(sink Sink, session *CaptureSession, runID string) (*SessionWriter, error) {
	if session.ExpectedRecords <= 0 {
		return nil, fmt.Errorf("session %d expects %d records, want > 0", session.Index, session.ExpectedRecords)
	}
	meta := SessionMeta{
		Path:            session.Path,
		ExpectedRecords: session.ExpectedRecords,
		Channels:        session.Channels,
		Start:           session.Start,
		RunID:           runID,
	}
	if err := sink.Open(meta); err != nil {
		return nil, fmt.Errorf("could not open session %d output '%s': %w", session.Index, session.Path, err)
	}
	return &SessionWriter{session: session, sink: sink, open: true}, nil
}

// Session returns the session being written.
func (w *SessionWriter) Session() *CaptureSession {
	return w.session
}

// Full tells whether the session has accepted its quota of records.
func (w *SessionWriter) Full() bool {
	return w.session.Full()
}

// Append writes one record to the sink and counts it. A sink error is
// returned as-is; the caller should treat it as fatal.
func (w *SessionWriter) Append(rec *TimestreamRecord) error {
	if !w.open {
		return fmt.Errorf("append to closed session %d", w.session.Index)
	}
	if w.session.Full() {
		return ErrSessionFull
	}
	if err := w.sink.Append(rec); err != nil {
		return fmt.Errorf("could not write record %d of session %d: %w",
			w.session.AcceptedRecords, w.session.Index, err)
	}
	w.session.AcceptedRecords++
	if ch := int(rec.Antenna); ch >= 0 && ch < MaxChannels {
		w.session.ChannelCounts[ch]++
	}
	return nil
}

// Close flushes and releases the sink. The session metadata is not
// rewritten, even when the quota was not reached. Closing twice is harmless.
func (w *SessionWriter) Close() error {
	if !w.open {
		return nil
	}
	w.open = false
	return w.sink.Close()
}
