package krec

import (
	"bytes"
	"fmt"
	"sync"
)

// TimestampPolicy controls how an append at a real timestamp equal to
// the previous frame's is treated. Non-decrease is always enforced; the
// policy only decides the equality case.
type TimestampPolicy int

const (
	// TimestampAllowEqual appends equal-timestamp frames normally.
	TimestampAllowEqual TimestampPolicy = iota

	// TimestampIdenticalNoop treats a byte-identical re-append as a
	// no-op and rejects an equal-timestamp frame with differing content.
	TimestampIdenticalNoop

	// TimestampStrictIncrease rejects equal timestamps outright.
	TimestampStrictIncrease
)

// Sink receives the encoded bytes of committed records. It is the
// durable-storage collaborator: the recording validates in memory first
// and forwards to the sink before committing, so a sink error leaves the
// in-memory state untouched. The recording never retries; a caller that
// sees a sink error must treat the stored recording's integrity as
// unknown.
type Sink interface {
	// AppendFrame persists one encoded frame.
	AppendFrame(encoded []byte) error

	// Finalize persists the end-of-recording marker.
	Finalize(endTimestamp uint64) error
}

// Option configures a Recording at Open time.
type Option func(*Recording)

// WithTimestampPolicy sets the equal-timestamp append policy.
func WithTimestampPolicy(p TimestampPolicy) Option {
	return func(r *Recording) {
		r.policy = p
	}
}

// WithSink attaches a durable sink. Without one the recording is purely
// in-memory.
func WithSink(s Sink) Option {
	return func(r *Recording) {
		r.sink = s
	}
}

// Recording is the top-level aggregate: one committed header plus an
// ordered, append-only frame sequence. It moves from Open to Finalized
// exactly once and never back.
//
// One actor holds append/finalize rights at a time; the single mutex
// spans validate+sink+commit so two near-simultaneous appends cannot
// interleave and violate ordering. Readers obtained through Iter work on
// a snapshot and never observe a partially appended frame.
type Recording struct {
	mu       sync.Mutex
	header   *KRecHeader
	registry *Registry
	policy   TimestampPolicy
	sink     Sink

	frames    []*KRecFrame
	lastFrame []byte // wire bytes of the last committed frame
	finalized bool
}

// Open commits a validated header and returns a recording in the Open
// state. The registry snapshot taken here is what every subsequent
// append validates against; editing the header's config table after Open
// has no effect on validation.
func Open(header *KRecHeader, opts ...Option) (*Recording, error) {
	if header.StartTimestamp == 0 {
		return nil, ErrStartTimestampUnset
	}
	registry, err := header.Registry()
	if err != nil {
		return nil, err
	}
	r := &Recording{
		header:   header,
		registry: registry,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Header returns the committed header.
func (r *Recording) Header() *KRecHeader {
	return r.header
}

// Registry returns the registry snapshot committed at Open.
func (r *Recording) Registry() *Registry {
	return r.registry
}

// Finalized reports whether the recording has reached its terminal state.
func (r *Recording) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// Len returns the number of committed frames.
func (r *Recording) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Append validates the frame, forwards it to the sink if one is
// attached, and commits it. On any error the recording is exactly as it
// was before the call. The committed copy is owned by the recording;
// mutating the caller's frame afterwards has no effect.
func (r *Recording) Append(frame *KRecFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return ErrRecordingFinalized
	}
	if err := r.registry.ValidateFrame(frame); err != nil {
		return err
	}

	encoded := MarshalFrame(frame)
	if len(r.frames) > 0 {
		prev := r.frames[len(r.frames)-1]
		noop, err := r.checkOrdering(prev, frame, encoded)
		if err != nil {
			return err
		}
		if noop {
			return nil
		}
	}

	if r.sink != nil {
		if err := r.sink.AppendFrame(encoded); err != nil {
			return fmt.Errorf("krec: sink append: %w", err)
		}
	}

	r.frames = append(r.frames, frame.clone())
	r.lastFrame = encoded
	return nil
}

// checkOrdering enforces timestamp and counter monotonicity against the
// previously committed frame. It returns noop=true when the policy says
// an identical re-append should be silently dropped.
func (r *Recording) checkOrdering(prev, next *KRecFrame, encoded []byte) (noop bool, err error) {
	if next.RealTimestamp < prev.RealTimestamp {
		return false, &OrderingError{Field: "real_timestamp", Expected: prev.RealTimestamp, Got: next.RealTimestamp}
	}
	if next.RealTimestamp == prev.RealTimestamp {
		switch r.policy {
		case TimestampStrictIncrease:
			return false, &OrderingError{Field: "real_timestamp", Expected: prev.RealTimestamp + 1, Got: next.RealTimestamp}
		case TimestampIdenticalNoop:
			if bytes.Equal(encoded, r.lastFrame) {
				return true, nil
			}
			return false, ErrDuplicateFrame
		}
	}
	if next.VideoFrameNumber < prev.VideoFrameNumber {
		return false, &OrderingError{Field: "video_frame_number", Expected: prev.VideoFrameNumber, Got: next.VideoFrameNumber}
	}
	if next.InferenceStep < prev.InferenceStep {
		return false, &OrderingError{Field: "inference_step", Expected: prev.InferenceStep, Got: next.InferenceStep}
	}
	// zero means "no aligned video", which is not a regression
	if next.VideoTimestamp != 0 && prev.VideoTimestamp != 0 && next.VideoTimestamp < prev.VideoTimestamp {
		return false, &OrderingError{Field: "video_timestamp", Expected: prev.VideoTimestamp, Got: next.VideoTimestamp}
	}
	return false, nil
}

// Finalize fixes the end timestamp and moves the recording to its
// terminal state. endTimestamp must be at or after both the header's
// start timestamp and the last frame's real timestamp. A sink error
// leaves the recording open and unchanged.
func (r *Recording) Finalize(endTimestamp uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return ErrRecordingFinalized
	}
	min := r.header.StartTimestamp
	if n := len(r.frames); n > 0 && r.frames[n-1].RealTimestamp > min {
		min = r.frames[n-1].RealTimestamp
	}
	if endTimestamp < min {
		return &InvalidEndTimestampError{Min: min, Got: endTimestamp}
	}

	if r.sink != nil {
		if err := r.sink.Finalize(endTimestamp); err != nil {
			return fmt.Errorf("krec: sink finalize: %w", err)
		}
	}

	end := endTimestamp
	r.header.endTimestamp = &end
	r.finalized = true
	return nil
}

// Iter returns a restartable iterator over the frames committed so far.
// The iterator works on a snapshot: frames appended after Iter returns
// are not observed, and iterating an Open recording is safe while a
// writer keeps appending.
func (r *Recording) Iter() *FrameIterator {
	r.mu.Lock()
	snapshot := r.frames[:len(r.frames):len(r.frames)]
	r.mu.Unlock()
	return &FrameIterator{frames: snapshot}
}

// Frames returns a copy of the committed frame sequence.
func (r *Recording) Frames() []*KRecFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*KRecFrame, len(r.frames))
	copy(out, r.frames)
	return out
}

// FrameIterator walks a frame snapshot in append order.
type FrameIterator struct {
	frames []*KRecFrame
	next   int
}

// Next returns the next frame, or ok=false once the snapshot is
// exhausted.
func (it *FrameIterator) Next() (*KRecFrame, bool) {
	if it.next >= len(it.frames) {
		return nil, false
	}
	f := it.frames[it.next]
	it.next++
	return f, true
}

// Reset rewinds the iterator to the start of its snapshot. Re-iterating
// yields the same sequence.
func (it *FrameIterator) Reset() {
	it.next = 0
}

// Len returns the snapshot length.
func (it *FrameIterator) Len() int {
	return len(it.frames)
}
