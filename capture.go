package suitcap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunConfig holds the per-run settings given on the command line.
type RunConfig struct {
	Port     int
	BaseName string
	Sessions int // number of output files
	Frames   int // frames per file
	Channels int // antenna channels per frame
	Verbose  bool
}

// ExpectedRecords returns the quota of every session. It is never checked
// against the channels actually present in the stream.
func (rc RunConfig) ExpectedRecords() int {
	return rc.Frames * rc.Channels
}

// Validate checks that the run can produce at least one non-empty session.
func (rc RunConfig) Validate() error {
	if rc.BaseName == "" {
		return fmt.Errorf("output file base name is empty")
	}
	if rc.Sessions <= 0 {
		return fmt.Errorf("number of files must be positive, got %d", rc.Sessions)
	}
	if rc.Frames <= 0 {
		return fmt.Errorf("number of frames must be positive, got %d", rc.Frames)
	}
	if rc.Channels <= 0 {
		return fmt.Errorf("number of channels must be positive, got %d", rc.Channels)
	}
	return nil
}

// Capture is one CaptureRun: it drives a fixed number of sequential sessions,
// each filled from the same PacketSource. All of its work happens on the
// goroutine that calls Run.
type Capture struct {
	Config   RunConfig
	Settings CaptureConfig
	RunID    string
	Dir      string            // dated output directory, known once Run starts
	RunLog   string            // run metadata filename, known once Run starts
	Sessions []*CaptureSession // every session opened so far
	Reporter *Reporter
	Now      func() time.Time // clock for session times and receipt times; time.Now if nil

	source    PacketSource
	factory   SinkFactory
	decoder   Decoder
	out       io.Writer
	publisher Publisher
}

// NewCapture prepares a run. Progress reports and echoed packets go to out.
func NewCapture(config RunConfig, settings CaptureConfig, source PacketSource, factory SinkFactory, out io.Writer) (*Capture, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	policy, err := settings.ShortFramePolicy()
	if err != nil {
		return nil, err
	}
	c := &Capture{
		Config:   config,
		Settings: settings,
		RunID:    ulid.Make().String(),
		source:   source,
		factory:  factory,
		decoder:  Decoder{Policy: policy},
		out:      out,
	}
	return c, nil
}

// SetPublisher sends session events and progress reports to p as well.
func (c *Capture) SetPublisher(p Publisher) {
	c.publisher = p
}

func (c *Capture) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run captures every session in turn. It returns nil when the last session
// reaches its quota, ctx.Err() when ctx is cancelled, or the first fatal
// socket or sink error. On success or cancellation the current session and
// the run log are closed cleanly and the run log gets an end time.
func (c *Capture) Run(ctx context.Context) (err error) {
	start := c.now()
	c.decoder.Now = c.now
	c.Dir, err = makeDirectory(c.Settings.OutputDir, start)
	if err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}
	c.RunLog = runLogPath(c.Dir, c.Config.BaseName)
	rl, err := CreateRunLog(c.RunLog, c.RunID, c.Config.Channels, c.Config.Frames, start)
	if err != nil {
		return err
	}
	defer func() {
		end := c.now()
		var ferr error
		switch {
		case err == nil:
			ferr = rl.Finish(end, "")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			ferr = rl.Finish(end, "interrupted")
		}
		cerr := rl.Close()
		if err == nil {
			err = errors.Join(ferr, cerr)
		}
	}()
	UpdateLogger.Printf("Run %s started: %d sessions of %d frames x %d channels, run log %s",
		c.RunID, c.Config.Sessions, c.Config.Frames, c.Config.Channels, c.RunLog)

	c.Reporter = NewReporter(c.out, c.Settings.ReportInterval, c.Settings.Window(), start)
	if c.publisher != nil {
		c.Reporter.SetPublisher(c.publisher)
	}
	var rec TimestreamRecord
	for i := 0; i < c.Config.Sessions; i++ {
		if err := c.runSession(ctx, i, rl, &rec); err != nil {
			if ctx.Err() != nil {
				UpdateLogger.Printf("Run %s interrupted during session %d", c.RunID, i)
			} else {
				ProblemLogger.Printf("Run %s failed during session %d: %v", c.RunID, i, err)
			}
			return err
		}
	}
	UpdateLogger.Printf("Run %s completed", c.RunID)
	return nil
}

// runSession opens session index, fills it to quota, and closes it.
func (c *Capture) runSession(ctx context.Context, index int, rl *RunLog, rec *TimestreamRecord) (err error) {
	session := &CaptureSession{
		Index:           index,
		Path:            sessionPath(c.Dir, c.Config.BaseName, index, c.factory.Kind().Extension()),
		ExpectedRecords: c.Config.ExpectedRecords(),
		Channels:        c.Config.Channels,
		Start:           c.now(),
	}
	c.Sessions = append(c.Sessions, session)
	w, err := OpenSession(c.factory.NewSink(), session, c.RunID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("could not close session %d: %w", index, cerr)
		}
		c.publishSession("close", session)
	}()
	if err := rl.AddSession(session.Path, session.Start); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Writing file %d/%d: %s\n", index+1, c.Config.Sessions, session.Path)
	c.publishSession("open", session)

	for !w.Full() {
		raw, err := c.source.Next(ctx)
		if err != nil {
			return err
		}
		c.Reporter.CountDatagram(len(raw))
		hdr, err := c.decoder.Decode(raw, rec)
		if err != nil {
			if errors.Is(err, ErrShortFrame) {
				c.Reporter.CountShort()
			} else {
				c.Reporter.CountRejected()
			}
			if c.Config.Verbose {
				fmt.Fprintf(c.out, "Dropped %d-byte datagram (%v): %v\n", len(raw), err, hdr)
			}
			continue
		}
		if err := w.Append(rec); err != nil {
			return err
		}
		c.Reporter.Observe(c.now(), hdr, rec, session, c.Config.Sessions)
	}
	UpdateLogger.Printf("Session %d complete: %d records in %s", index, session.AcceptedRecords, session.Path)
	return nil
}

func (c *Capture) publishSession(event string, session *CaptureSession) {
	if c.publisher == nil {
		return
	}
	msg := newSessionMessage(c.RunID, event, session, c.Config.Sessions, c.now())
	if err := c.publisher.Publish(SessionTag, msg); err != nil {
		ProblemLogger.Printf("Could not publish session %s: %v", event, err)
	}
}
