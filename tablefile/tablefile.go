// Package tablefile reads and writes structured table containers.
//
// A container holds one growable table of timestream records plus file-level
// attributes. It starts with a JSON header padded with spaces to HeaderLength
// bytes, the last of which is a newline. The header is rewritten in place on
// Close so Records_written reflects what the table holds. After the header,
// records are written sequentially in little endian format:
//
//	bytes        type          meaning
//	0-3          uint32        timestamp
//	4            int8          antenna
//	5-2052       [2048]int8    timestream
//	2053-2054    uint16        length L of comp_timestamp
//	2055-        [L]byte       comp_timestamp, the host receipt time
package tablefile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/suitcase/suitcap/getbytes"
)

// HeaderLength is the fixed size of the JSON header region.
const HeaderLength = 2048

// NumSamples is the length of each record's timestream.
const NumSamples = 2048

// TableName is the name of the one table in every container.
const TableName = "ADC_Timestream_Data"

// Field describes one column of the table.
type Field struct {
	Name  string
	Type  string
	Count int `json:",omitempty"`
}

// Schema is the column list of TableName, in storage order.
var Schema = []Field{
	{Name: "timestamp", Type: "uint32"},
	{Name: "antenna", Type: "int8"},
	{Name: "timestream", Type: "int8", Count: NumSamples},
	{Name: "comp_timestamp", Type: "string"},
}

// Header holds the container attributes and the table description.
type Header struct {
	FileFormat        string
	FileFormatVersion string
	NumberChannels    int    `json:"Number_channels"`
	NumberPackets     int    `json:"Number_packets"`
	Date              string `json:"Date"`
	RunID             string `json:"Run_ID,omitempty"`
	RecordsWritten    int    `json:"Records_written"`
	Table             string
	Schema            []Field
}

// Record is one row of the table.
type Record struct {
	Timestamp     uint32
	Antenna       int8
	Timestream    [NumSamples]int8
	CompTimestamp string
}

// Writer writes a container file.
type Writer struct {
	Header

	fileName string
	file     *os.File
	writer   *bufio.Writer
	scratch  [5]byte
}

// Create makes a new container with the given attributes.
func Create(fileName string, numberChannels, numberPackets int, date, runID string) (*Writer, error) {
	f, err := os.Create(fileName)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		Header: Header{
			FileFormat:        "SUITTABLE",
			FileFormatVersion: "1.0",
			NumberChannels:    numberChannels,
			NumberPackets:     numberPackets,
			Date:              date,
			RunID:             runID,
			Table:             TableName,
			Schema:            Schema,
		},
		fileName: fileName,
		file:     f,
		writer:   bufio.NewWriterSize(f, 65536),
	}
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := w.file.Seek(HeaderLength, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func encodeHeader(h *Header) ([]byte, error) {
	s, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if len(s) > HeaderLength-1 {
		return nil, fmt.Errorf("table header is %d bytes, exceeds %d", len(s), HeaderLength-1)
	}
	padded := make([]byte, HeaderLength)
	copy(padded, s)
	for i := len(s); i < HeaderLength-1; i++ {
		padded[i] = ' '
	}
	padded[HeaderLength-1] = '\n'
	return padded, nil
}

func (w *Writer) writeHeader() error {
	b, err := encodeHeader(&w.Header)
	if err != nil {
		return err
	}
	_, err = w.file.WriteAt(b, 0)
	return err
}

// FileName returns the name of the file being written.
func (w *Writer) FileName() string {
	return w.fileName
}

// WriteRecord appends one row to the table.
func (w *Writer) WriteRecord(timestamp uint32, antenna int8, timestream []int8, compTimestamp string) error {
	if len(timestream) != NumSamples {
		return fmt.Errorf("table record has %d samples, want %d", len(timestream), NumSamples)
	}
	if len(compTimestamp) > 0xffff {
		return errors.New("table record comp_timestamp is too long")
	}
	binary.LittleEndian.PutUint32(w.scratch[0:4], timestamp)
	w.scratch[4] = byte(antenna)
	if _, err := w.writer.Write(w.scratch[:]); err != nil {
		return err
	}
	if _, err := w.writer.Write(getbytes.FromSliceInt8(timestream)); err != nil {
		return err
	}
	if err := binary.Write(w.writer, binary.LittleEndian, uint16(len(compTimestamp))); err != nil {
		return err
	}
	if _, err := w.writer.WriteString(compTimestamp); err != nil {
		return err
	}
	w.RecordsWritten++
	return nil
}

// Flush writes any buffered rows to the file.
func (w *Writer) Flush() error {
	return w.writer.Flush()
}

// Close flushes the rows, updates Records_written in the header, and closes the file.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	defer func() { w.file = nil }()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.writeHeader(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Reader reads a container file.
type Reader struct {
	Header

	file   *os.File
	reader *bufio.Reader
	buf    [5 + NumSamples]byte
}

// OpenReader opens fileName and parses its header.
func OpenReader(fileName string) (*Reader, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	r := &Reader{file: f, reader: bufio.NewReaderSize(f, 65536)}
	raw := make([]byte, HeaderLength)
	if _, err := io.ReadFull(r.reader, raw); err != nil {
		f.Close()
		return nil, fmt.Errorf("table file '%s': could not read header: %w", fileName, err)
	}
	if raw[HeaderLength-1] != '\n' {
		f.Close()
		return nil, fmt.Errorf("table file '%s': header is not newline terminated", fileName)
	}
	if err := json.Unmarshal(bytes.TrimRight(raw, " \n"), &r.Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("table file '%s': %w", fileName, err)
	}
	if r.Table != TableName {
		f.Close()
		return nil, fmt.Errorf("table file '%s' holds table '%s', want '%s'", fileName, r.Table, TableName)
	}
	return r, nil
}

// Attributes returns the file-level attributes as "name: value" lines.
func (r *Reader) Attributes() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Number_channels: %d\n", r.NumberChannels)
	fmt.Fprintf(&sb, "Number_packets: %d\n", r.NumberPackets)
	fmt.Fprintf(&sb, "Date: %s\n", r.Date)
	if r.RunID != "" {
		fmt.Fprintf(&sb, "Run_ID: %s\n", r.RunID)
	}
	fmt.Fprintf(&sb, "Records_written: %d\n", r.RecordsWritten)
	return sb.String()
}

// NextRecord reads the next row into rec, returning io.EOF at the end of the table.
func (r *Reader) NextRecord(rec *Record) error {
	if _, err := io.ReadFull(r.reader, r.buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("table row is incomplete: %w", err)
		}
		return err
	}
	rec.Timestamp = binary.LittleEndian.Uint32(r.buf[0:4])
	rec.Antenna = int8(r.buf[4])
	copy(rec.Timestream[:], getbytes.ToSliceInt8(r.buf[5:]))
	var n uint16
	if err := binary.Read(r.reader, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("table row is incomplete: %w", err)
	}
	s := make([]byte, n)
	if _, err := io.ReadFull(r.reader, s); err != nil {
		return fmt.Errorf("table row is incomplete: %w", err)
	}
	rec.CompTimestamp = string(s)
	return nil
}

// Close closes the file reader.
func (r *Reader) Close() error {
	return r.file.Close()
}
