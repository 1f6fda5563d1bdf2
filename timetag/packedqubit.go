package timetag

import (
	"fmt"
	"io"

	"github.com/quantalign/photonalign/qkd"
)

// WritePackedQubits writes qubits in the packed-qubit auxiliary format
// (§6): four 2-bit qubit codes per byte, most-significant pair first; a
// trailing short run is zero-padded to fill out the last byte.
func WritePackedQubits(w io.Writer, qubits qkd.QubitList) error {
	buf := make([]byte, 0, (len(qubits)+3)/4)
	var cur byte
	shift := 6
	for _, q := range qubits {
		cur |= (byte(q) & 0x03) << uint(shift)
		shift -= 2
		if shift < 0 {
			buf = append(buf, cur)
			cur = 0
			shift = 6
		}
	}
	if shift != 6 {
		buf = append(buf, cur)
	}
	_, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("timetag: write packed qubits: %w", err)
	}
	return nil
}

// ReadPackedQubits reads count qubits from the packed-qubit format,
// the inverse of WritePackedQubits. count must not exceed 4*len(data),
// since padding bits carry no information distinguishing them from a
// real Zero qubit.
func ReadPackedQubits(r io.Reader, count int) (qkd.QubitList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("timetag: read packed qubits: %w", err)
	}
	if count > len(data)*4 {
		return nil, fmt.Errorf("%w: requested %d qubits from %d packed bytes", ErrDecode, count, len(data))
	}

	out := make(qkd.QubitList, 0, count)
	for _, b := range data {
		for shift := 6; shift >= 0 && len(out) < count; shift -= 2 {
			out = append(out, qkd.Qubit((b>>uint(shift))&0x03))
		}
		if len(out) >= count {
			break
		}
	}
	return out, nil
}
