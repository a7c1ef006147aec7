package suitcap

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

// RunLog is the human-readable metadata file shared by all sessions of one
// CaptureRun. It is written once at startup and appended to as each session
// opens. Every entry is flushed to disk immediately.
type RunLog struct {
	Filename string
	RunID    string
	Sessions int // number of session entries written
	file     *os.File
	w        *bufio.Writer
	finished bool
}

// CreateRunLog creates filename and writes the run-level lines.
func CreateRunLog(filename, runID string, channels, frames int, start time.Time) (*RunLog, error) {
	fp, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("%v, filename: <%v>", err, filename)
	}
	rl := &RunLog{Filename: filename, RunID: runID, file: fp, w: bufio.NewWriter(fp)}
	fmt.Fprintf(rl.w, "Run ID: %s\n", runID)
	fmt.Fprintf(rl.w, "Number channels: %d\n", channels)
	fmt.Fprintf(rl.w, "Number frames:  %d\n", frames)
	fmt.Fprintf(rl.w, "Data start time: %s\n", start.Format(ReceiptTimeLayout))
	if err := rl.w.Flush(); err != nil {
		fp.Close()
		return nil, fmt.Errorf("failed to write run log header, err: %v", err)
	}
	return rl, nil
}

// AddSession appends the entry for one session: its path and start time.
func (rl *RunLog) AddSession(path string, start time.Time) error {
	if rl.file == nil {
		return fmt.Errorf("cannot add session to closed run log %s", rl.Filename)
	}
	fmt.Fprintf(rl.w, "%s\n", path)
	fmt.Fprintf(rl.w, "File start time: %s\n", start.Format(ReceiptTimeLayout))
	if err := rl.w.Flush(); err != nil {
		return fmt.Errorf("failed to write run log entry, err: %v", err)
	}
	rl.Sessions++
	return nil
}

// Finish writes the end-of-run line. A non-empty label (e.g. "interrupted")
// is appended in parentheses. Only the first call has any effect.
func (rl *RunLog) Finish(end time.Time, label string) error {
	if rl.file == nil || rl.finished {
		return nil
	}
	rl.finished = true
	line := fmt.Sprintf("Run end time: %s", end.Format(ReceiptTimeLayout))
	if label != "" {
		line += fmt.Sprintf(" (%s)", label)
	}
	fmt.Fprintln(rl.w, line)
	return rl.w.Flush()
}

// Close flushes and closes the file. Closing twice is harmless.
func (rl *RunLog) Close() error {
	if rl.file == nil {
		return nil
	}
	flushErr := rl.w.Flush()
	err := rl.file.Close()
	rl.file = nil
	if flushErr != nil {
		return fmt.Errorf("failed to flush run log, err: %v", flushErr)
	}
	if err != nil {
		return fmt.Errorf("failed to close run log, err: %v", err)
	}
	return nil
}
