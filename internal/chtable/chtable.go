// Package chtable stores capture sessions as rows of a ClickHouse table.
// Each session is entered once in the sessions table, and every accepted
// record becomes one row of the records table.
package chtable

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config says where the database lives and how rows are batched.
type Config struct {
	Addr      []string
	Database  string
	Table     string
	BatchSize int
}

// DefaultConfig returns the settings used when the config file says nothing.
func DefaultConfig() Config {
	return Config{
		Addr:      []string{"localhost:9000"},
		Database:  "suitcap",
		Table:     "timestream",
		BatchSize: 1024,
	}
}

// SessionsTable returns the name of the table holding one row per session.
func (c Config) SessionsTable() string {
	return c.Table + "_sessions"
}

func (c Config) createRecordsSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	session String,
	seq UInt32,
	timestamp UInt32,
	antenna Int8,
	timestream Array(Int8),
	comp_timestamp String
) ENGINE = MergeTree ORDER BY (session, seq)`, c.Database, c.Table)
}

func (c Config) createSessionsSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	session String,
	run_id String,
	number_channels Int32,
	number_packets Int32,
	date String,
	created DateTime64(6)
) ENGINE = MergeTree ORDER BY session`, c.Database, c.SessionsTable())
}

func (c Config) insertRecordsSQL() string {
	return fmt.Sprintf("INSERT INTO %s.%s", c.Database, c.Table)
}

func (c Config) insertSessionSQL() string {
	return fmt.Sprintf("INSERT INTO %s.%s VALUES (?, ?, ?, ?, ?, ?)", c.Database, c.SessionsTable())
}

// Conn is an open connection with the tables created.
type Conn struct {
	cfg  Config
	conn driver.Conn
}

// Connect opens the database, pings it, and creates the tables if needed.
// Credentials come from SUITCAP_DB_USER and SUITCAP_DB_PASSWORD.
func Connect(ctx context.Context, cfg Config) (*Conn, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	opt := clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: os.Getenv("SUITCAP_DB_USER"),
			Password: os.Getenv("SUITCAP_DB_PASSWORD"),
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: "suitcap", Version: "unknown"},
			},
		},
	}
	conn, err := clickhouse.Open(&opt)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			err = fmt.Errorf("clickhouse exception [%d] %s: %w", exception.Code, exception.Message, err)
		}
		conn.Close()
		return nil, err
	}
	for _, q := range []string{cfg.createRecordsSQL(), cfg.createSessionsSQL()} {
		if err := conn.Exec(ctx, q); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &Conn{cfg: cfg, conn: conn}, nil
}

// Close releases the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// SessionInfo describes one session, entered in the sessions table.
type SessionInfo struct {
	Name           string
	RunID          string
	NumberChannels int
	NumberPackets  int
	Date           string
}

// Writer appends the records of one session.
type Writer struct {
	SessionInfo
	RecordsWritten int

	conn    *Conn
	batch   driver.Batch
	pending int
}

// NewSession enters info in the sessions table and returns a record writer.
func (c *Conn) NewSession(ctx context.Context, info SessionInfo) (*Writer, error) {
	if err := c.conn.Exec(ctx, c.cfg.insertSessionSQL(),
		info.Name, info.RunID, int32(info.NumberChannels), int32(info.NumberPackets),
		info.Date, time.Now(),
	); err != nil {
		return nil, err
	}
	return &Writer{SessionInfo: info, conn: c}, nil
}

// WriteRecord queues one row, sending the batch when it reaches the batch size.
func (w *Writer) WriteRecord(timestamp uint32, antenna int8, timestream []int8, compTimestamp string) error {
	if w.batch == nil {
		b, err := w.conn.conn.PrepareBatch(context.Background(), w.conn.cfg.insertRecordsSQL())
		if err != nil {
			return err
		}
		w.batch = b
	}
	if err := w.batch.Append(w.Name, uint32(w.RecordsWritten), timestamp, antenna, timestream, compTimestamp); err != nil {
		return err
	}
	w.RecordsWritten++
	w.pending++
	if w.pending >= w.conn.cfg.BatchSize {
		return w.Flush()
	}
	return nil
}

// Flush sends any queued rows.
func (w *Writer) Flush() error {
	if w.batch == nil {
		return nil
	}
	b := w.batch
	w.batch = nil
	w.pending = 0
	return b.Send()
}

// Close sends any queued rows. The connection stays open for the next session.
func (w *Writer) Close() error {
	return w.Flush()
}
