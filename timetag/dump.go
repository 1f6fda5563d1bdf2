package timetag

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/quantalign/photonalign/qkd"
)

const dumpRecordSize = 9 // 8-byte picosecond timestamp + 1-byte qubit

// WriteDump writes list in the detection-report dump format (§6): for
// each report, an 8-byte big-endian picosecond timestamp followed by a
// 1-byte qubit value, with no header.
func WriteDump(w io.Writer, list qkd.DetectionReportList) error {
	buf := make([]byte, dumpRecordSize)
	for _, d := range list {
		binary.BigEndian.PutUint64(buf[:8], uint64(d.Time))
		buf[8] = byte(d.Value)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("timetag: write dump record: %w", err)
		}
	}
	return nil
}

// ReadDump reads the detection-report dump format back into a
// DetectionReportList, the inverse of WriteDump.
func ReadDump(r io.Reader) (qkd.DetectionReportList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("timetag: read dump: %w", err)
	}
	if len(data)%dumpRecordSize != 0 {
		return nil, fmt.Errorf("%w: dump length %d is not a multiple of %d", ErrDecode, len(data), dumpRecordSize)
	}

	list := make(qkd.DetectionReportList, 0, len(data)/dumpRecordSize)
	for off := 0; off < len(data); off += dumpRecordSize {
		rec := data[off : off+dumpRecordSize]
		t := int64(binary.BigEndian.Uint64(rec[:8]))
		list = append(list, qkd.DetectionReport{Time: t, Value: qkd.Qubit(rec[8])})
	}
	return list, nil
}
