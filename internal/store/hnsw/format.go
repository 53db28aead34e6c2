package hnsw

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// On-disk binary layout for hnsw_index.bin, mmap'd for fast loads (spec
// §4.2). The graph traversal structure itself lives in memory (rebuilt from
// these records at Load time); this file is the durable source of the
// vectors, labels, and soft-delete flags that structure is built from -
// modeled on the teacher's internal/ticket BinaryCache (magic + version +
// fixed header + fixed-size index records).
const (
	magic      = "CIHN"
	formatVers = uint16(1)
	headerSize = 4 + 2 + 4 + 4 + 4 // magic + version + dim + count + nextLabel
)

var (
	errBadMagic   = errors.New("hnsw: bad magic")
	errBadVersion = errors.New("hnsw: unsupported format version")
	errTruncated  = errors.New("hnsw: truncated file")
)

// record is one on-disk entry: a point id, its label (graph key), the
// vector, and a soft-delete flag.
type record struct {
	pointID string
	label   uint32
	deleted bool
	vector  []float32
}

// encodeHeader writes the fixed header: magic, version, vector dimension,
// record count, and next-label counter.
func encodeHeader(dim, count int, nextLabel uint32) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], formatVers)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(dim))
	binary.LittleEndian.PutUint32(buf[10:14], uint32(count))
	binary.LittleEndian.PutUint32(buf[14:18], nextLabel)

	return buf
}

func decodeHeader(data []byte) (dim, count int, nextLabel uint32, err error) {
	if len(data) < headerSize {
		return 0, 0, 0, errTruncated
	}

	if string(data[0:4]) != magic {
		return 0, 0, 0, errBadMagic
	}

	if binary.LittleEndian.Uint16(data[4:6]) != formatVers {
		return 0, 0, 0, errBadVersion
	}

	dim = int(binary.LittleEndian.Uint32(data[6:10]))
	count = int(binary.LittleEndian.Uint32(data[10:14]))
	nextLabel = binary.LittleEndian.Uint32(data[14:18])

	return dim, count, nextLabel, nil
}

// encodeRecord appends one record: pointID length + bytes, label, deleted
// flag, then `dim` little-endian float32s.
func encodeRecord(dst []byte, r record) []byte {
	idLen := uint16(len(r.pointID))
	dst = binary.LittleEndian.AppendUint16(dst, idLen)
	dst = append(dst, r.pointID...)
	dst = binary.LittleEndian.AppendUint32(dst, r.label)

	if r.deleted {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}

	for _, f := range r.vector {
		dst = binary.LittleEndian.AppendUint32(dst, float32bits(f))
	}

	return dst
}

// decodeRecord reads one record starting at offset, returning the record
// and the offset of the next one.
func decodeRecord(data []byte, offset, dim int) (record, int, error) {
	if offset+2 > len(data) {
		return record{}, 0, errTruncated
	}

	idLen := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
	offset += 2

	if offset+idLen+4+1 > len(data) {
		return record{}, 0, errTruncated
	}

	id := string(data[offset : offset+idLen])
	offset += idLen

	label := binary.LittleEndian.Uint32(data[offset : offset+4])
	offset += 4

	deleted := data[offset] != 0
	offset++

	vecBytes := dim * 4
	if offset+vecBytes > len(data) {
		return record{}, 0, errTruncated
	}

	vec := make([]float32, dim)
	for i := range dim {
		vec[i] = float32frombits(binary.LittleEndian.Uint32(data[offset+i*4 : offset+i*4+4]))
	}

	offset += vecBytes

	return record{pointID: id, label: label, deleted: deleted, vector: vec}, offset, nil
}

func decodeAllRecords(data []byte, dim, count int) ([]record, error) {
	records := make([]record, 0, count)
	offset := headerSize

	for range count {
		r, next, err := decodeRecord(data, offset, dim)
		if err != nil {
			return nil, fmt.Errorf("decode record at %d: %w", offset, err)
		}

		records = append(records, r)
		offset = next
	}

	return records, nil
}
