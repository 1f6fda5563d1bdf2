// Package config provides the ambient YAML configuration loader for the
// alignment pipeline. It is deliberately outside the core's Go API
// contract (§1, §6 "no CLI/env is part of the core contract") — core
// packages accept plain option structs; only cmd/alignreplay reaches for
// this loader.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantalign/photonalign/align"
	"github.com/quantalign/photonalign/drift"
	"github.com/quantalign/photonalign/gating"
	"github.com/quantalign/photonalign/isolate"
	"github.com/quantalign/photonalign/offsetsearch"
	"github.com/quantalign/photonalign/qkd"
	"github.com/quantalign/photonalign/timetag"
)

// Config mirrors §6's configuration surface 1:1 for YAML loading.
type Config struct {
	SlotWidth            qkd.PicoSeconds `yaml:"slotWidth"`
	TxJitter             qkd.PicoSeconds `yaml:"txJitter"`
	DriftSampleTime      qkd.PicoSeconds `yaml:"driftSampleTime"`
	AcceptanceRatio      float64         `yaml:"acceptanceRatio"`
	FilterSigma          float64         `yaml:"filterSigma"`
	FilterWidth          int             `yaml:"filterWidth"`
	CoarseThreshold      float64         `yaml:"coarseThreshold"`
	FineThreshold        float64         `yaml:"fineThreshold"`
	Stride               int             `yaml:"stride"`
	OffsetSamples        int             `yaml:"offsetSamples"`
	OffsetFrom           int             `yaml:"offsetFrom"`
	OffsetTo             int             `yaml:"offsetTo"`
	AcceptanceConfidence float64         `yaml:"acceptanceConfidence"`
	ChannelMapping       [16]qkd.Qubit   `yaml:"channelMapping"`
	CoarseHz             float64         `yaml:"coarseHz"`
	WaitForConfig        bool            `yaml:"waitForConfig"`
	MaxCoarseTime        uint64          `yaml:"maxCoarseTime"`
}

// Default returns the documented default parameters (§6).
func Default() Config {
	cfg := Config{
		DriftSampleTime:      drift.DefaultDriftSampleTime,
		AcceptanceRatio:      gating.DefaultAcceptanceRatio,
		FilterSigma:          5.0,
		FilterWidth:          5,
		CoarseThreshold:      0.2,
		FineThreshold:        0.08,
		Stride:               25,
		AcceptanceConfidence: 0.8,
		OffsetFrom:           -64,
		OffsetTo:             64,
		CoarseHz:             timetag.DefaultCoarseHz,
	}
	// Same channel table as timetag.New: identity for channels 0-3, every
	// other channel unmapped (0xFF) so its detections are dropped.
	for i := range cfg.ChannelMapping {
		cfg.ChannelMapping[i] = qkd.Qubit(0xFF)
	}
	for c := 0; c < qkd.NumQubitValues; c++ {
		cfg.ChannelMapping[c] = qkd.Qubit(c)
	}
	return cfg
}

// Load reads YAML from r into a Config seeded with Default.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// AlignConfig builds the align.Config the orchestrator consumes,
// translating the flat YAML surface into per-component option structs.
func (c Config) AlignConfig() align.Config {
	return align.Config{
		Isolate: isolate.Config{
			Stride:    c.Stride,
			Sigma:     c.FilterSigma,
			Width:     c.FilterWidth,
			Threshold: c.CoarseThreshold,
		},
		Drift: drift.Config{
			SlotWidth:       c.SlotWidth,
			TxJitter:        c.TxJitter,
			DriftSampleTime: c.DriftSampleTime,
		},
		Gating: gating.Config{
			SlotWidth:       c.SlotWidth,
			TxJitter:        c.TxJitter,
			AcceptanceRatio: c.AcceptanceRatio,
		},
		OffsetRange:          offsetsearch.Range{From: c.OffsetFrom, To: c.OffsetTo},
		OffsetSamples:        c.OffsetSamples,
		AcceptanceConfidence: c.AcceptanceConfidence,
	}
}

// TimetagOptions builds the timetag.Option set for the decoder.
func (c Config) TimetagOptions() []timetag.Option {
	opts := []timetag.Option{
		timetag.WithChannelMapping(c.ChannelMapping),
		timetag.WithCoarseHz(c.CoarseHz),
	}
	if c.WaitForConfig {
		opts = append(opts, timetag.WithWaitForConfig())
	}
	if c.MaxCoarseTime != 0 {
		opts = append(opts, timetag.WithMaxCoarseTime(c.MaxCoarseTime))
	}
	return opts
}
