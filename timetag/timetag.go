// Package timetag decodes the hardware time-tagger's binary record stream
// into DetectionReports (C1): fixed 8-byte records, big-endian bit
// fields, manually extracted since the sub-byte fields don't fit
// encoding/binary's fixed-width struct tags.
package timetag

import (
	"errors"
	"fmt"
	"io"

	"github.com/quantalign/photonalign/qkd"
)

// ErrDecode is the sentinel for a malformed time-tag stream (§7
// "DecodeError"). A file whose length is not a multiple of the record
// size is always fatal; an individual record with an unrecognised type
// byte is skipped and only contributes to Stats.DroppedInvalidType.
var ErrDecode = errors.New("timetag: decode error")

const recordSize = 8

const (
	recordTypeConfig    byte = 0x25
	recordTypeDetection byte = 0x24
)

// DefaultCoarseHz is the device's canonical coarse-counter frequency.
const DefaultCoarseHz = 130e6

// DefaultFineTapsPerCoarse is the number of fine-counter subdivisions per coarse tick.
const DefaultFineTapsPerCoarse = 4096

// Config controls decoding (§6 configuration surface, §4.1 options).
type Config struct {
	CoarseHz          float64
	FineTapsPerCoarse int
	ChannelMapping    [16]qkd.Qubit
	WaitForConfig     bool
	MaxCoarseTime     uint64 // 0 = no limit
}

// Option configures a Decoder at construction time.
type Option func(*Config)

// WithWaitForConfig drops detection records preceding the first config record.
func WithWaitForConfig() Option {
	return func(c *Config) { c.WaitForConfig = true }
}

// WithMaxCoarseTime stops decoding once a detection's coarse counter
// reaches limit. limit == 0 disables the check (the default).
func WithMaxCoarseTime(limit uint64) Option {
	return func(c *Config) { c.MaxCoarseTime = limit }
}

// WithChannelMapping overrides the channel->qubit lookup table.
func WithChannelMapping(mapping [16]qkd.Qubit) Option {
	return func(c *Config) { c.ChannelMapping = mapping }
}

// WithCoarseHz overrides the coarse-counter frequency (default 130MHz,
// see §9 open question — the source treats it as a constant, this
// decoder always takes it as configuration).
func WithCoarseHz(hz float64) Option {
	return func(c *Config) {
		if hz > 0 {
			c.CoarseHz = hz
		}
	}
}

func defaultConfig() Config {
	cfg := Config{CoarseHz: DefaultCoarseHz, FineTapsPerCoarse: DefaultFineTapsPerCoarse}
	for i := range cfg.ChannelMapping {
		cfg.ChannelMapping[i] = qkd.Qubit(0xFF) // unmapped by default except identity below
	}
	for c := 0; c < 4; c++ {
		cfg.ChannelMapping[c] = qkd.Qubit(c)
	}
	return cfg
}

// Stats exposes decode-time diagnostic counters (§7 "dropped-count diagnostic").
type Stats struct {
	DroppedChannel      int
	DroppedBeforeConfig int
	DroppedInvalidType  int
	ConfigRecords       int
}

// Decoder decodes a time-tag record stream into DetectionReports.
type Decoder struct {
	cfg Config
}

// New constructs a Decoder with the documented defaults (130MHz coarse
// clock, 4096 fine taps, identity channel mapping for channels 0-3).
func New(opts ...Option) *Decoder {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Decoder{cfg: cfg}
}

// Decode reads r to completion and returns the decoded detections in
// file order, along with diagnostic counters. The input must be a
// multiple of 8 bytes; any other length is a fatal DecodeError.
func (d *Decoder) Decode(r io.Reader) (qkd.DetectionReportList, Stats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(data)%recordSize != 0 {
		return nil, Stats{}, fmt.Errorf("%w: length %d is not a multiple of %d", ErrDecode, len(data), recordSize)
	}

	var (
		stats       Stats
		list        qkd.DetectionReportList
		sawConfig   = !d.cfg.WaitForConfig
		coarseScale = 1e12 / d.cfg.CoarseHz
		fineScale   = 1e12 / (d.cfg.CoarseHz * float64(d.cfg.FineTapsPerCoarse))
	)

	for off := 0; off < len(data); off += recordSize {
		rec := data[off : off+recordSize]
		switch rec[0] {
		case recordTypeConfig:
			sawConfig = true
			stats.ConfigRecords++
		case recordTypeDetection:
			if !sawConfig {
				stats.DroppedBeforeConfig++
				continue
			}
			coarse, channel, fine := decodeDetectionFields(rec)
			if d.cfg.MaxCoarseTime != 0 && coarse >= d.cfg.MaxCoarseTime {
				return list, stats, nil
			}
			if channel < 0 || channel >= len(d.cfg.ChannelMapping) || d.cfg.ChannelMapping[channel] == qkd.Qubit(0xFF) {
				stats.DroppedChannel++
				continue
			}
			t := int64(float64(coarse)*coarseScale + float64(fine)*fineScale + 0.5)
			list = append(list, qkd.DetectionReport{Time: t, Value: d.cfg.ChannelMapping[channel]})
		default:
			stats.DroppedInvalidType++
		}
	}

	return list, stats, nil
}

// decodeDetectionFields extracts the coarse counter (36 bits, bytes 1-5,
// byte 5's high nibble as the coarse value's low nibble), the
// one-based channel index stored in byte 6's high nibble (already
// decremented to zero-based here), and the 12-bit fine counter (byte
// 6's low nibble as the high byte, byte 7 as the low byte).
func decodeDetectionFields(rec []byte) (coarse uint64, channel int, fine uint16) {
	coarse = uint64(rec[1])<<28 | uint64(rec[2])<<20 | uint64(rec[3])<<12 | uint64(rec[4])<<4 | uint64(rec[5]>>4)
	channel = int(rec[6]>>4) - 1
	fine = uint16(rec[6]&0x0F)<<8 | uint16(rec[7])
	return
}
