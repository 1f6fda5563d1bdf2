// Command alignreplay replays a recorded time-tag file through the
// alignment pipeline and prints the per-frame outcome. It is a
// development aid for manual/integration verification, not part of the
// tested contract surface (core packages never parse flags or files
// themselves).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quantalign/photonalign/align"
	"github.com/quantalign/photonalign/config"
	"github.com/quantalign/photonalign/internal/workpool"
	"github.com/quantalign/photonalign/internal/xlog"
	"github.com/quantalign/photonalign/qkd"
	"github.com/quantalign/photonalign/stats"
	"github.com/quantalign/photonalign/timetag"
)

func main() {
	inPath := flag.String("in", "", "path to a time-tag record file")
	configPath := flag.String("config", "", "path to a YAML config file (optional, defaults applied otherwise)")
	markersPath := flag.String("markers", "", "path to a 'slot qubit' marker file (optional)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: alignreplay -in detections.bin [-config config.yaml] [-markers markers.txt]")
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := xlog.Wrap(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger())

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			log.Errorf("load config: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	list, decodeStats, err := decodeFile(cfg, *inPath)
	if err != nil {
		log.Errorf("decode %s: %v", *inPath, err)
		os.Exit(1)
	}
	log.Infof("decoded %d detections (dropped: channel=%d beforeConfig=%d invalidType=%d)",
		len(list), decodeStats.DroppedChannel, decodeStats.DroppedBeforeConfig, decodeStats.DroppedInvalidType)

	markers := qkd.Markers{}
	if *markersPath != "" {
		markers, err = loadMarkers(*markersPath)
		if err != nil {
			log.Errorf("load markers: %v", err)
			os.Exit(1)
		}
	}

	pool := workpool.New()
	defer pool.Close()

	counters := stats.NewCounters()
	sink := stats.NewAsyncSink(counters, 16)
	defer sink.Close()

	o := align.New(cfg.AlignConfig(), &singleFrameSource{list: list}, staticMarkers{markers: markers}, align.WithSink(sink), align.WithLogger(log), align.WithPool(pool))
	if err := o.Run(context.Background()); err != nil {
		log.Errorf("run: %v", err)
		os.Exit(1)
	}
	sink.Close()

	snap := counters.Snapshot()
	fmt.Printf("frames=%d lowConfidence=%d filterFailed=%d markerFetchFailed=%d avgDrift=%g\n",
		snap.Frames, snap.LowConfidence, snap.FilterFailed, snap.MarkerFetchFailed, snap.AverageDrift)
}

func decodeFile(cfg config.Config, path string) (qkd.DetectionReportList, timetag.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, timetag.Stats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	d := timetag.New(cfg.TimetagOptions()...)
	return d.Decode(bufio.NewReader(f))
}

func loadMarkers(path string) (qkd.Markers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	markers := qkd.Markers{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed marker line %q", line)
		}
		slot, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("marker slot %q: %w", fields[0], err)
		}
		qubit, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("marker qubit %q: %w", fields[1], err)
		}
		markers[qkd.SlotID(slot)] = qkd.Qubit(qubit)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return markers, nil
}

// singleFrameSource treats the whole decoded file as one frame, which is
// sufficient for manual replay of a single recorded capture.
type singleFrameSource struct {
	list qkd.DetectionReportList
	done bool
}

func (s *singleFrameSource) Next(ctx context.Context) (qkd.DetectionReportList, qkd.FrameID, bool, error) {
	if s.done {
		return nil, 0, false, nil
	}
	s.done = true
	return s.list, 0, true, nil
}

// staticMarkers answers every marker request with the same pre-loaded
// map and discards the follow-up request silently.
type staticMarkers struct {
	markers qkd.Markers
}

func (m staticMarkers) FetchMarkers(ctx context.Context, req align.MarkerRequest) (align.MarkerResponse, error) {
	return align.MarkerResponse{Markers: m.markers}, nil
}

func (m staticMarkers) DiscardSlots(ctx context.Context, req align.DiscardRequest) error {
	return nil
}
