// Package rawbin reads and writes the raw binary session file format.
//
// A session file is a fixed 34-byte header followed by fixed-size records,
// all little-endian:
//
//	bytes     type        meaning
//	0-3       int32       total records expected in the session
//	4-7       int32       number of antenna channels
//	8-33      [26]byte    session start time, "2006-01-02 15:04:05.000000", NUL padded
//
// and then each record:
//
//	0-3       uint32      instrument timestamp
//	4         int8        antenna channel
//	5-2052    [2048]int8  samples
//
// The host receipt time of each record is not stored in this format.
package rawbin

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/suitcase/suitcap/getbytes"
)

// Sizes of the fixed parts of the format.
const (
	TimeWidth    = 26
	HeaderLength = 4 + 4 + TimeWidth
	NumSamples   = 2048
	RecordLength = 4 + 1 + NumSamples
)

// Header is the session header at the start of every file.
type Header struct {
	TotalRecords int32
	Channels     int32
	StartTime    string
}

// Record is one stored timestream record.
type Record struct {
	Timestamp uint32
	Antenna   int8
	Samples   [NumSamples]int8
}

func encodeTime(s string) [TimeWidth]byte {
	var b [TimeWidth]byte
	copy(b[:], s)
	return b
}

// Writer writes a raw binary session file.
type Writer struct {
	Header
	RecordsWritten int

	fileName string
	file     *os.File
	writer   *bufio.Writer
	scratch  [5]byte
}

// Create opens fileName (truncating any existing file) and writes the header.
func Create(fileName string, h Header) (*Writer, error) {
	f, err := os.Create(fileName)
	if err != nil {
		return nil, err
	}
	w := &Writer{Header: h, fileName: fileName, file: f, writer: bufio.NewWriterSize(f, 65536)}
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader() error {
	hdr := struct {
		TotalRecords int32
		Channels     int32
		StartTime    [TimeWidth]byte
	}{w.TotalRecords, w.Channels, encodeTime(w.StartTime)}
	return binary.Write(w.writer, binary.LittleEndian, &hdr)
}

// FileName returns the name of the file being written.
func (w *Writer) FileName() string {
	return w.fileName
}

// WriteRecord appends one record. samples must hold exactly NumSamples values.
func (w *Writer) WriteRecord(timestamp uint32, antenna int8, samples []int8) error {
	if len(samples) != NumSamples {
		return fmt.Errorf("rawbin record has %d samples, want %d", len(samples), NumSamples)
	}
	binary.LittleEndian.PutUint32(w.scratch[0:4], timestamp)
	w.scratch[4] = byte(antenna)
	if _, err := w.writer.Write(w.scratch[:]); err != nil {
		return err
	}
	if _, err := w.writer.Write(getbytes.FromSliceInt8(samples)); err != nil {
		return err
	}
	w.RecordsWritten++
	return nil
}

// Flush writes any buffered records to the file.
func (w *Writer) Flush() error {
	return w.writer.Flush()
}

// Close flushes and closes the file. The header is not rewritten.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	ferr := w.writer.Flush()
	cerr := w.file.Close()
	w.file = nil
	if ferr != nil {
		return ferr
	}
	return cerr
}

// Reader reads a raw binary session file.
type Reader struct {
	Header
	// RecordsPresent is the number of complete records actually in the file,
	// which is less than TotalRecords when the session was cut short.
	RecordsPresent int
	// TrailingBytes counts the bytes of any partial record at the end of the file.
	TrailingBytes int

	recordsRead int
	file        *os.File
	reader      *bufio.Reader
	buf         [RecordLength]byte
}

// ErrTruncated is returned by NextRecord when the file holds fewer records
// than its header promised and all complete records have been read.
var ErrTruncated = errors.New("session file holds fewer records than its header states")

// OpenReader opens fileName and parses its header.
func OpenReader(fileName string) (*Reader, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r := &Reader{file: f, reader: bufio.NewReaderSize(f, 65536)}
	if err := r.parseHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("rawbin file '%s': %w", fileName, err)
	}
	body := info.Size() - HeaderLength
	r.RecordsPresent = int(body / RecordLength)
	r.TrailingBytes = int(body % RecordLength)
	return r, nil
}

func (r *Reader) parseHeader() error {
	var hdr struct {
		TotalRecords int32
		Channels     int32
		StartTime    [TimeWidth]byte
	}
	if err := binary.Read(r.reader, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("could not read header: %w", err)
	}
	if hdr.TotalRecords < 0 || hdr.Channels < 0 {
		return fmt.Errorf("header has negative counts (records=%d, channels=%d)", hdr.TotalRecords, hdr.Channels)
	}
	r.TotalRecords = hdr.TotalRecords
	r.Channels = hdr.Channels
	r.StartTime = string(bytes.TrimRight(hdr.StartTime[:], "\x00"))
	return nil
}

// Truncated reports whether the file holds fewer records than the header states.
func (r *Reader) Truncated() bool {
	return r.RecordsPresent < int(r.TotalRecords) || r.TrailingBytes != 0
}

// NextRecord reads the next record into rec. It returns io.EOF after the last
// promised record, or ErrTruncated if the file ends early.
func (r *Reader) NextRecord(rec *Record) error {
	if r.recordsRead >= r.RecordsPresent {
		if r.Truncated() {
			return ErrTruncated
		}
		return io.EOF
	}
	if _, err := io.ReadFull(r.reader, r.buf[:]); err != nil {
		return err
	}
	rec.Timestamp = binary.LittleEndian.Uint32(r.buf[0:4])
	rec.Antenna = int8(r.buf[4])
	copy(rec.Samples[:], getbytes.ToSliceInt8(r.buf[5:]))
	r.recordsRead++
	return nil
}

// Close closes the file reader.
func (r *Reader) Close() error {
	return r.file.Close()
}
