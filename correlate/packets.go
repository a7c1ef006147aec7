// Package correlate assembles stored timestream records into multi-channel
// frames and accumulates their cross-correlation products.
package correlate

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/suitcase/suitcap/rawbin"
	"github.com/suitcase/suitcap/tablefile"
)

// NumSamples is the number of int8 samples in each record; pairs of samples
// are the real and imaginary parts of NumBins complex values.
const (
	NumSamples = 2048
	NumBins    = NumSamples / 2
)

// Packet is one stored record, whatever file format it came from.
type Packet struct {
	Timestamp   uint32
	Antenna     int8
	Samples     [NumSamples]int8
	ReceiptTime string // empty for formats that do not store it
}

// PacketReader iterates over the records of one session file.
type PacketReader interface {
	NumberChannels() int
	NumberPackets() int
	Next(p *Packet) error // io.EOF after the last record
	Close() error
}

// OpenPackets opens a session file by its extension: .bin or .tbl.
func OpenPackets(fileName string) (PacketReader, error) {
	switch filepath.Ext(fileName) {
	case ".bin":
		r, err := rawbin.OpenReader(fileName)
		if err != nil {
			return nil, err
		}
		return &rawbinPackets{r}, nil
	case ".tbl":
		r, err := tablefile.OpenReader(fileName)
		if err != nil {
			return nil, err
		}
		return &tablePackets{r}, nil
	}
	return nil, fmt.Errorf("file '%s' is neither a .bin nor a .tbl session file", fileName)
}

type rawbinPackets struct {
	r *rawbin.Reader
}

func (b *rawbinPackets) NumberChannels() int { return int(b.r.Channels) }
func (b *rawbinPackets) NumberPackets() int  { return int(b.r.TotalRecords) }
func (b *rawbinPackets) Close() error        { return b.r.Close() }

// Next treats a truncated file as ending at its last complete record.
func (b *rawbinPackets) Next(p *Packet) error {
	var rec rawbin.Record
	if err := b.r.NextRecord(&rec); err != nil {
		if errors.Is(err, rawbin.ErrTruncated) {
			return io.EOF
		}
		return err
	}
	p.Timestamp = rec.Timestamp
	p.Antenna = rec.Antenna
	p.Samples = rec.Samples
	p.ReceiptTime = ""
	return nil
}

type tablePackets struct {
	r *tablefile.Reader
}

func (t *tablePackets) NumberChannels() int { return t.r.NumberChannels }
func (t *tablePackets) NumberPackets() int  { return t.r.NumberPackets }
func (t *tablePackets) Close() error        { return t.r.Close() }

func (t *tablePackets) Next(p *Packet) error {
	var rec tablefile.Record
	if err := t.r.NextRecord(&rec); err != nil {
		return err
	}
	p.Timestamp = rec.Timestamp
	p.Antenna = rec.Antenna
	p.Samples = rec.Timestream
	p.ReceiptTime = rec.CompTimestamp
	return nil
}
