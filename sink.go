package suitcap

import (
	"context"
	"fmt"
	"time"

	"github.com/suitcase/suitcap/internal/chtable"
	"github.com/suitcase/suitcap/rawbin"
	"github.com/suitcase/suitcap/tablefile"
)

// SessionMeta is the per-session metadata persisted when a sink opens.
type SessionMeta struct {
	Path            string
	ExpectedRecords int
	Channels        int
	Start           time.Time
	RunID           string
}

// startString formats the session start like a record receipt time.
func (m SessionMeta) startString() string {
	return m.Start.Format(ReceiptTimeLayout)
}

// Sink is the persistence backend one session writes into.
type Sink interface {
	Open(meta SessionMeta) error
	Append(rec *TimestreamRecord) error
	Close() error
}

// SinkKind names the available sinks in the config file.
type SinkKind string

// The known sinks
const (
	BinarySink     SinkKind = "binary"
	TableSink      SinkKind = "table"
	ClickHouseSink SinkKind = "clickhouse"
)

// Extension returns the session file suffix for the sink.
func (k SinkKind) Extension() string {
	switch k {
	case TableSink:
		return "tbl"
	case ClickHouseSink:
		return "ch"
	default:
		return "bin"
	}
}

// EchoWindow returns how many per-packet lines follow each progress report.
func (k SinkKind) EchoWindow() int {
	if k == BinarySink {
		return 32
	}
	return 16
}

// ParseSinkKind checks a sink name from the config file.
func ParseSinkKind(name string) (SinkKind, error) {
	switch k := SinkKind(name); k {
	case "":
		return BinarySink, nil
	case BinarySink, TableSink, ClickHouseSink:
		return k, nil
	}
	return BinarySink, fmt.Errorf("unknown sink '%s' (want binary, table, or clickhouse)", name)
}

// binarySinkFile writes sessions with the rawbin format.
type binarySinkFile struct {
	w *rawbin.Writer
}

func (s *binarySinkFile) Open(meta SessionMeta) error {
	w, err := rawbin.Create(meta.Path, rawbin.Header{
		TotalRecords: int32(meta.ExpectedRecords),
		Channels:     int32(meta.Channels),
		StartTime:    meta.startString(),
	})
	if err != nil {
		return err
	}
	s.w = w
	return nil
}

func (s *binarySinkFile) Append(rec *TimestreamRecord) error {
	return s.w.WriteRecord(rec.Timestamp, rec.Antenna, rec.Samples[:])
}

func (s *binarySinkFile) Close() error {
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}

// tableSinkFile writes sessions with the tablefile format.
type tableSinkFile struct {
	w *tablefile.Writer
}

func (s *tableSinkFile) Open(meta SessionMeta) error {
	w, err := tablefile.Create(meta.Path, meta.Channels, meta.ExpectedRecords, meta.startString(), meta.RunID)
	if err != nil {
		return err
	}
	s.w = w
	return nil
}

func (s *tableSinkFile) Append(rec *TimestreamRecord) error {
	return s.w.WriteRecord(rec.Timestamp, rec.Antenna, rec.Samples[:], rec.ReceiptTime)
}

func (s *tableSinkFile) Close() error {
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}

// clickhouseSinkTable writes sessions as rows of a ClickHouse table. The
// session path is used only as the session's name.
type clickhouseSinkTable struct {
	conn *chtable.Conn
	w    *chtable.Writer
}

func (s *clickhouseSinkTable) Open(meta SessionMeta) error {
	w, err := s.conn.NewSession(context.Background(), chtable.SessionInfo{
		Name:           meta.Path,
		RunID:          meta.RunID,
		NumberChannels: meta.Channels,
		NumberPackets:  meta.ExpectedRecords,
		Date:           meta.startString(),
	})
	if err != nil {
		return err
	}
	s.w = w
	return nil
}

func (s *clickhouseSinkTable) Append(rec *TimestreamRecord) error {
	return s.w.WriteRecord(rec.Timestamp, rec.Antenna, rec.Samples[:], rec.ReceiptTime)
}

func (s *clickhouseSinkTable) Close() error {
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}

// SinkFactory makes one new Sink per session. Close releases anything shared
// by all sessions of a run.
type SinkFactory interface {
	NewSink() Sink
	Kind() SinkKind
	Close() error
}

type fileSinkFactory struct {
	kind SinkKind
}

func (f fileSinkFactory) Kind() SinkKind { return f.kind }

func (f fileSinkFactory) Close() error { return nil }

func (f fileSinkFactory) NewSink() Sink {
	if f.kind == TableSink {
		return &tableSinkFile{}
	}
	return &binarySinkFile{}
}

type clickhouseSinkFactory struct {
	conn *chtable.Conn
}

func (f clickhouseSinkFactory) Kind() SinkKind { return ClickHouseSink }

func (f clickhouseSinkFactory) Close() error { return f.conn.Close() }

func (f clickhouseSinkFactory) NewSink() Sink {
	return &clickhouseSinkTable{conn: f.conn}
}

// NewSinkFactory returns the factory for the named sink. The ClickHouse sink
// connects to the database here, once per run.
func NewSinkFactory(ctx context.Context, kind SinkKind, db chtable.Config) (SinkFactory, error) {
	switch kind {
	case BinarySink, TableSink:
		return fileSinkFactory{kind: kind}, nil
	case ClickHouseSink:
		conn, err := chtable.Connect(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("could not connect to ClickHouse at %v: %w", db.Addr, err)
		}
		return clickhouseSinkFactory{conn: conn}, nil
	}
	return nil, fmt.Errorf("unknown sink '%s'", kind)
}
