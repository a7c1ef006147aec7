package suitcap

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/suitcase/suitcap/internal/chtable"
)

// CaptureConfig holds the deployment-wide settings read from the "capture"
// key of the config file. Per-run settings come from the command line.
type CaptureConfig struct {
	OutputDir      string        // sessions go under OutputDir/dYYYYMMDD
	Sink           string        // "binary", "table", or "clickhouse"
	ShortFrames    string        // "zeropad" or "reject"
	ReadTimeout    time.Duration // receive deadline used to poll for cancellation
	ReportInterval time.Duration // minimum time between progress reports
	EchoWindow     int           // per-packet lines after a report; 0 means the sink's default
	StatusPort     int           // ZMQ status publisher port; 0 means none
	RecvBuffer     int           // requested UDP receive buffer in bytes; 0 means kernel default

	ClickHouse chtable.Config `mapstructure:"-"`
}

// DefaultCaptureConfig returns the settings used for any key the config file omits.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		OutputDir:      "dataOut",
		Sink:           string(BinarySink),
		ShortFrames:    "zeropad",
		ReadTimeout:    250 * time.Millisecond,
		ReportInterval: 2 * time.Second,
		ClickHouse:     chtable.DefaultConfig(),
	}
}

// LoadCaptureConfig reads the "capture" and "clickhouse" keys from v on top
// of the defaults, and checks the named choices.
func LoadCaptureConfig(v *viper.Viper) (CaptureConfig, error) {
	cfg := DefaultCaptureConfig()
	if err := v.UnmarshalKey("capture", &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing 'capture' config: %w", err)
	}
	if err := v.UnmarshalKey("clickhouse", &cfg.ClickHouse); err != nil {
		return cfg, fmt.Errorf("error parsing 'clickhouse' config: %w", err)
	}
	if _, err := cfg.SinkKind(); err != nil {
		return cfg, err
	}
	if _, err := cfg.ShortFramePolicy(); err != nil {
		return cfg, err
	}
	if cfg.ReadTimeout <= 0 {
		return cfg, fmt.Errorf("capture.readtimeout must be positive, got %v", cfg.ReadTimeout)
	}
	if cfg.EchoWindow < 0 {
		return cfg, fmt.Errorf("capture.echowindow must not be negative, got %d", cfg.EchoWindow)
	}
	return cfg, nil
}

// SinkKind returns the configured sink.
func (c CaptureConfig) SinkKind() (SinkKind, error) {
	return ParseSinkKind(c.Sink)
}

// ShortFramePolicy returns the configured policy for short timestream frames.
func (c CaptureConfig) ShortFramePolicy() (ShortFramePolicy, error) {
	return ParseShortFramePolicy(c.ShortFrames)
}

// Window returns the echo window, falling back to the sink's default.
func (c CaptureConfig) Window() int {
	if c.EchoWindow > 0 {
		return c.EchoWindow
	}
	kind, _ := c.SinkKind()
	return kind.EchoWindow()
}
