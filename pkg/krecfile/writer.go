package krecfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/unijord/krec"
)

const defaultBufferSize = 64 * 1024

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithSyncOnWrite forces flush+fsync after every appended frame. The
// default syncs only on Finalize and Close.
func WithSyncOnWrite(enabled bool) WriterOption {
	return func(w *Writer) {
		w.syncOnWrite = enabled
	}
}

// WithBufferSize sets the write buffer size in bytes.
func WithBufferSize(size int) WriterOption {
	return func(w *Writer) {
		if size > 0 {
			w.bufferSize = size
		}
	}
}

// Writer appends a recording to a file. It implements krec.Sink, so it
// plugs straight into krec.Open(header, krec.WithSink(w)). The file
// header record is written at creation; frames follow in append order;
// Finalize writes the end record and seals the file header flags.
type Writer struct {
	mu          sync.Mutex
	fd          *os.File
	w           *bufio.Writer
	path        string
	meta        fileHeader
	syncOnWrite bool
	bufferSize  int
	finalized   bool
	closed      bool
}

// Create creates a recording file at path and writes its header record.
// An existing file at path is truncated.
func Create(path string, header *krec.KRecHeader, opts ...WriterOption) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("krecfile: create directory: %w", err)
	}
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("krecfile: create: %w", err)
	}

	w := &Writer{
		fd:         fd,
		path:       path,
		meta:       newFileHeader(),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.w = bufio.NewWriterSize(fd, w.bufferSize)

	if _, err := w.w.Write(encodeFileHeader(w.meta)); err != nil {
		fd.Close()
		return nil, fmt.Errorf("krecfile: write file header: %w", err)
	}
	if _, err := w.w.Write(encodeRecord(kindHeader, krec.MarshalHeader(header))); err != nil {
		fd.Close()
		return nil, fmt.Errorf("krecfile: write header record: %w", err)
	}
	return w, nil
}

// AppendFrame writes one encoded frame record.
func (w *Writer) AppendFrame(encoded []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.finalized {
		return ErrFinalized
	}
	if _, err := w.w.Write(encodeRecord(kindFrame, encoded)); err != nil {
		return fmt.Errorf("krecfile: write frame record: %w", err)
	}
	w.meta.frameCount++
	if w.syncOnWrite {
		if err := w.sync(); err != nil {
			return err
		}
	}
	return nil
}

// Finalize writes the end record carrying endTimestamp, seals the file
// header flags and syncs. The writer stays open for Close only.
func (w *Writer) Finalize(endTimestamp uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.finalized {
		return ErrFinalized
	}

	payload := make([]byte, endPayloadSize)
	binary.LittleEndian.PutUint64(payload, endTimestamp)
	if _, err := w.w.Write(encodeRecord(kindEnd, payload)); err != nil {
		return fmt.Errorf("krecfile: write end record: %w", err)
	}

	w.meta.flags &^= flagActive
	w.meta.flags |= flagFinalized
	w.finalized = true
	return w.flushMeta()
}

// Sync flushes buffered frames and fsyncs the file.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.sync()
}

func (w *Writer) sync() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("krecfile: flush: %w", err)
	}
	if err := w.fd.Sync(); err != nil {
		return fmt.Errorf("krecfile: fsync: %w", err)
	}
	return nil
}

// flushMeta rewrites the 32-byte file header in place and syncs.
func (w *Writer) flushMeta() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("krecfile: flush: %w", err)
	}
	if _, err := w.fd.WriteAt(encodeFileHeader(w.meta), 0); err != nil {
		return fmt.Errorf("krecfile: rewrite file header: %w", err)
	}
	if err := w.fd.Sync(); err != nil {
		return fmt.Errorf("krecfile: fsync: %w", err)
	}
	return nil
}

// Close flushes, persists the final frame count and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := w.flushMeta(); err != nil {
		w.fd.Close()
		w.closed = true
		return err
	}
	w.closed = true
	return w.fd.Close()
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// FrameCount returns the number of frames appended so far.
func (w *Writer) FrameCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.meta.frameCount
}

var _ krec.Sink = (*Writer)(nil)
