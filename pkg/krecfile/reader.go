package krecfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"

	"github.com/unijord/krec"
)

// Reader provides seekable, lazy access to a recording file through a
// read-only memory mapping. The recording header is decoded eagerly at
// open; frames decode on demand through FrameReader. A Reader is safe
// for concurrent FrameReaders; each walks its own offset.
type Reader struct {
	fd          *os.File
	data        mmap.MMap
	meta        fileHeader
	header      *krec.KRecHeader
	framesStart int64
	closed      atomic.Bool
}

// OpenFile maps the recording at path and decodes its header.
func OpenFile(path string) (*Reader, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("krecfile: open: %w", err)
	}
	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("krecfile: stat: %w", err)
	}
	if stat.Size() < fileHeaderSize+recordHeaderSize {
		fd.Close()
		return nil, fmt.Errorf("krecfile: %s: %w", path, ErrTruncatedRecord)
	}

	data, err := mmap.Map(fd, mmap.RDONLY, 0)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("krecfile: mmap: %w", err)
	}

	r := &Reader{fd: fd, data: data}
	if err := r.init(); err != nil {
		data.Unmap()
		fd.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) init() error {
	meta, err := decodeFileHeader(r.data[:fileHeaderSize])
	if err != nil {
		return err
	}
	r.meta = meta

	kind, payload, next, err := decodeRecord(r.data, fileHeaderSize)
	if err != nil {
		return err
	}
	if kind != kindHeader {
		return fmt.Errorf("krecfile: record at offset %d: %w", fileHeaderSize, ErrMissingHeader)
	}
	header, err := krec.UnmarshalHeader(payload)
	if err != nil {
		return fmt.Errorf("krecfile: header record at offset %d: %w", fileHeaderSize, err)
	}
	r.header = header
	r.framesStart = next
	return nil
}

// Header returns the decoded recording header.
func (r *Reader) Header() *krec.KRecHeader {
	return r.header
}

// FrameCount returns the frame count persisted in the file header. It
// is advisory: a crashed writer may not have rewritten it, so the frame
// walk is authoritative.
func (r *Reader) FrameCount() uint64 {
	return r.meta.frameCount
}

// Finalized reports the file header's finalized flag. The end record is
// authoritative; use FrameReader.End after a full walk.
func (r *Reader) Finalized() bool {
	return r.meta.flags&flagFinalized != 0
}

// Frames returns a new frame walker starting at the first frame record.
// Walkers are independent and restartable.
func (r *Reader) Frames() *FrameReader {
	return &FrameReader{r: r, off: r.framesStart}
}

// Close unmaps and closes the file. Frames decoded earlier remain valid;
// they do not alias the mapping.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := r.data.Unmap(); err != nil {
		r.fd.Close()
		return fmt.Errorf("krecfile: unmap: %w", err)
	}
	return r.fd.Close()
}

// FrameReader walks a Reader's frame records in file order. Not safe for
// concurrent use; open one per goroutine.
type FrameReader struct {
	r    *Reader
	off  int64
	end  *uint64
	done bool
}

// Next decodes the next frame record and returns it with the record's
// byte offset. It returns io.EOF at the end of the recording, whether
// that end is an explicit end record or plain end of file. Corruption
// surfaces as an error carrying the failing offset so the remainder of
// the stream can be recovered manually.
func (fr *FrameReader) Next() (*krec.KRecFrame, int64, error) {
	if fr.done || fr.r.closed.Load() {
		return nil, fr.off, io.EOF
	}
	data := fr.r.data
	if fr.off >= int64(len(data)) {
		// no end record: the writer never finalized
		fr.done = true
		return nil, fr.off, io.EOF
	}

	recordStart := fr.off
	kind, payload, next, err := decodeRecord(data, recordStart)
	if err != nil {
		return nil, recordStart, err
	}

	switch kind {
	case kindFrame:
		frame, err := krec.UnmarshalFrame(payload)
		if err != nil {
			return nil, recordStart, fmt.Errorf("krecfile: frame record at offset %d: %w", recordStart, err)
		}
		fr.off = next
		return frame, recordStart, nil
	case kindEnd:
		if len(payload) != endPayloadSize {
			return nil, recordStart, fmt.Errorf("krecfile: end record at offset %d: %w", recordStart, ErrTruncatedRecord)
		}
		end := binary.LittleEndian.Uint64(payload)
		fr.end = &end
		fr.done = true
		if next != int64(len(data)) {
			slog.Warn("[krec.file]",
				slog.String("event_type", "recording.trailing.data"),
				slog.Int64("offset", next),
				slog.Int64("size", int64(len(data))),
			)
		}
		return nil, recordStart, io.EOF
	default:
		return nil, recordStart, fmt.Errorf("krecfile: record at offset %d: %w", recordStart, ErrUnexpectedRecord)
	}
}

// End returns the end record's finalize timestamp. ok is false until the
// walk has reached an explicit end record.
func (fr *FrameReader) End() (end uint64, ok bool) {
	if fr.end == nil {
		return 0, false
	}
	return *fr.end, true
}

// Reset rewinds the walker to the first frame record.
func (fr *FrameReader) Reset() {
	fr.off = fr.r.framesStart
	fr.end = nil
	fr.done = false
}
