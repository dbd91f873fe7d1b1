// Package krecfile is the on-disk container for KRec recordings: one
// length-prefixed, CRC-framed header record followed by frame records in
// append order, optionally terminated by an end record carrying the
// finalize timestamp. The Writer implements krec.Sink; the Reader maps
// the file and decodes frames lazily.
package krecfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"time"
)

const (
	// just the string "KREC", 'K' = 0x4B and so on.
	fileMagic     = 0x4B524543
	formatVersion = 1

	// magic(4) version(4) createdAt(8) frameCount(8) flags(4) crc(4)
	fileHeaderSize = 32

	// crc(4) + length(4) + kind(1)
	recordHeaderSize = 9

	// end record payload: the finalize end_timestamp
	endPayloadSize = 8
)

const (
	flagActive    uint32 = 1 << 0
	flagFinalized uint32 = 1 << 1
)

type recordKind byte

const (
	kindHeader recordKind = 1
	kindFrame  recordKind = 2
	kindEnd    recordKind = 3
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

var (
	ErrClosed             = errors.New("krecfile: file is closed")
	ErrFinalized          = errors.New("krecfile: recording file is finalized")
	ErrInvalidMagic       = errors.New("krecfile: bad magic, not a krec file")
	ErrUnsupportedVersion = errors.New("krecfile: unsupported format version")
	ErrInvalidCRC         = errors.New("krecfile: invalid crc, the data may be corrupted")
	ErrTruncatedRecord    = errors.New("krecfile: truncated record")
	ErrMissingHeader      = errors.New("krecfile: first record is not a recording header")
	ErrUnexpectedRecord   = errors.New("krecfile: unexpected record kind")
)

// fileHeader is the fixed 32-byte block at the start of every recording
// file. frameCount and flags are rewritten when the file is finalized or
// closed; the CRC covers the first 28 bytes.
type fileHeader struct {
	version    uint32
	createdAt  int64
	frameCount uint64
	flags      uint32
}

func encodeFileHeader(h fileHeader) []byte {
	buf := make([]byte, fileHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], fileMagic)
	binary.LittleEndian.PutUint32(buf[4:8], h.version)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.createdAt))
	binary.LittleEndian.PutUint64(buf[16:24], h.frameCount)
	binary.LittleEndian.PutUint32(buf[24:28], h.flags)
	binary.LittleEndian.PutUint32(buf[28:32], crc32.Checksum(buf[0:28], crcTable))
	return buf
}

func decodeFileHeader(buf []byte) (fileHeader, error) {
	if len(buf) < fileHeaderSize {
		return fileHeader{}, ErrTruncatedRecord
	}
	saved := binary.LittleEndian.Uint32(buf[28:32])
	computed := crc32.Checksum(buf[0:28], crcTable)
	if saved != computed {
		return fileHeader{}, fmt.Errorf("%w: file header crc expected %08x, got %08x", ErrInvalidCRC, computed, saved)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != fileMagic {
		return fileHeader{}, ErrInvalidMagic
	}
	h := fileHeader{
		version:    binary.LittleEndian.Uint32(buf[4:8]),
		createdAt:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		frameCount: binary.LittleEndian.Uint64(buf[16:24]),
		flags:      binary.LittleEndian.Uint32(buf[24:28]),
	}
	if h.version != formatVersion {
		return fileHeader{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.version)
	}
	return h, nil
}

func newFileHeader() fileHeader {
	return fileHeader{
		version:   formatVersion,
		createdAt: time.Now().UnixNano(),
		flags:     flagActive,
	}
}

// encodeRecord frames one record: [crc32c(4)][length(4)][kind(1)][payload].
// The CRC covers kind and payload.
func encodeRecord(kind recordKind, payload []byte) []byte {
	buf := make([]byte, recordHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	buf[8] = byte(kind)
	copy(buf[recordHeaderSize:], payload)
	binary.LittleEndian.PutUint32(buf[0:4], crc32.Checksum(buf[8:], crcTable))
	return buf
}

// decodeRecord parses the record starting at off. The returned payload
// aliases data; callers must not retain it past the mapping's lifetime.
func decodeRecord(data []byte, off int64) (kind recordKind, payload []byte, next int64, err error) {
	if off+recordHeaderSize > int64(len(data)) {
		return 0, nil, 0, fmt.Errorf("krecfile: record at offset %d: %w", off, ErrTruncatedRecord)
	}
	length := int64(binary.LittleEndian.Uint32(data[off+4 : off+8]))
	end := off + recordHeaderSize + length
	if end > int64(len(data)) {
		return 0, nil, 0, fmt.Errorf("krecfile: record at offset %d: %w", off, ErrTruncatedRecord)
	}
	saved := binary.LittleEndian.Uint32(data[off : off+4])
	computed := crc32.Checksum(data[off+8:end], crcTable)
	if saved != computed {
		return 0, nil, 0, fmt.Errorf("krecfile: record at offset %d: %w", off, ErrInvalidCRC)
	}
	return recordKind(data[off+8]), data[off+recordHeaderSize : end], end, nil
}
