// Package idindex implements IDIndexStore (spec §4.3): a mmap'd
// point_id -> path binary map, rebuilt in full on every change via
// [rebuild.Rebuilder]. Unlike HNSWStore there is no soft-delete; any
// deletion forces a full rebuild from the current point set.
package idindex

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	magic      = "CIID"
	formatVers = uint16(1)
	headerSize = 4 + 2 + 4 // magic + version + count
)

var (
	errBadMagic   = errors.New("idindex: bad magic")
	errBadVersion = errors.New("idindex: unsupported format version")
	errTruncated  = errors.New("idindex: truncated file")
)

// entry is one point_id -> path record.
type entry struct {
	pointID string
	path    string
}

func encodeHeader(count int) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], formatVers)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(count))

	return buf
}

func decodeHeader(data []byte) (count int, err error) {
	if len(data) < headerSize {
		return 0, errTruncated
	}

	if string(data[0:4]) != magic {
		return 0, errBadMagic
	}

	if binary.LittleEndian.Uint16(data[4:6]) != formatVers {
		return 0, errBadVersion
	}

	return int(binary.LittleEndian.Uint32(data[6:10])), nil
}

func encodeEntry(dst []byte, e entry) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(e.pointID)))
	dst = append(dst, e.pointID...)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(e.path)))
	dst = append(dst, e.path...)

	return dst
}

func decodeEntry(data []byte, offset int) (entry, int, error) {
	if offset+2 > len(data) {
		return entry{}, 0, errTruncated
	}

	idLen := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
	offset += 2

	if offset+idLen+2 > len(data) {
		return entry{}, 0, errTruncated
	}

	id := string(data[offset : offset+idLen])
	offset += idLen

	pathLen := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
	offset += 2

	if offset+pathLen > len(data) {
		return entry{}, 0, errTruncated
	}

	path := string(data[offset : offset+pathLen])
	offset += pathLen

	return entry{pointID: id, path: path}, offset, nil
}

func decodeAllEntries(data []byte, count int) ([]entry, error) {
	entries := make([]entry, 0, count)
	offset := headerSize

	for range count {
		e, next, err := decodeEntry(data, offset)
		if err != nil {
			return nil, fmt.Errorf("decode entry at %d: %w", offset, err)
		}

		entries = append(entries, e)
		offset = next
	}

	return entries, nil
}
