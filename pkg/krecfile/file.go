package krecfile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/unijord/krec"
)

// Load reads a recording file and rebuilds the in-memory aggregate,
// replaying every frame through Recording.Append so the loaded recording
// is fully re-validated: referential integrity, ordering and the empty
// IMU rule are enforced on read exactly as they were on write. A file
// without an end record loads in the Open state.
func Load(path string, opts ...krec.Option) (*krec.Recording, error) {
	r, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	rec, err := krec.Open(r.Header(), opts...)
	if err != nil {
		return nil, err
	}

	frames := r.Frames()
	for {
		frame, off, err := frames.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := rec.Append(frame); err != nil {
			return nil, fmt.Errorf("krecfile: frame record at offset %d: %w", off, err)
		}
	}

	if end, ok := frames.End(); ok {
		if err := rec.Finalize(end); err != nil {
			return nil, err
		}
	} else {
		slog.Warn("[krec.file]",
			slog.String("event_type", "recording.unfinalized"),
			slog.String("path", path),
			slog.Int("frames", rec.Len()),
		)
	}
	return rec, nil
}

// Save writes an in-memory recording to path. A finalized recording gets
// an end record; an open one is written without and can be continued by
// loading and appending.
func Save(path string, rec *krec.Recording, opts ...WriterOption) error {
	w, err := Create(path, rec.Header(), opts...)
	if err != nil {
		return err
	}

	it := rec.Iter()
	for {
		frame, ok := it.Next()
		if !ok {
			break
		}
		if err := w.AppendFrame(krec.MarshalFrame(frame)); err != nil {
			w.Close()
			return err
		}
	}

	if end, ok := rec.Header().EndTimestamp(); ok {
		if err := w.Finalize(end); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
