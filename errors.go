package krec

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordingFinalized is returned by Append and Finalize once a
	// recording has reached its terminal state.
	ErrRecordingFinalized = errors.New("krec: recording is finalized")

	// ErrEmptyIMU rejects a frame whose IMUValues carries none of
	// accel, gyro, mag or quaternion.
	ErrEmptyIMU = errors.New("krec: imu values present but every sub-field is unset")

	// ErrDuplicateFrame is returned under TimestampIdenticalNoop when a
	// frame re-appended at an equal real timestamp differs in content.
	ErrDuplicateFrame = errors.New("krec: equal-timestamp frame differs from previous frame")

	// ErrStartTimestampUnset rejects a header built without an explicit
	// start timestamp.
	ErrStartTimestampUnset = errors.New("krec: header start timestamp must be set")
)

// UnknownActuatorError reports a frame reference to an actuator ID that
// does not exist in the header's registry.
type UnknownActuatorError struct {
	ID uint32
}

func (e *UnknownActuatorError) Error() string {
	return fmt.Sprintf("krec: actuator %d is not in the header registry", e.ID)
}

// DuplicateActuatorError reports a repeated actuator ID within a single
// frame's state list or command list.
type DuplicateActuatorError struct {
	ID uint32
}

func (e *DuplicateActuatorError) Error() string {
	return fmt.Sprintf("krec: actuator %d appears more than once in the frame", e.ID)
}

// DuplicateActuatorConfigError reports a repeated actuator ID in the
// header's configuration table.
type DuplicateActuatorConfigError struct {
	ID uint32
}

func (e *DuplicateActuatorConfigError) Error() string {
	return fmt.Sprintf("krec: duplicate actuator config for id %d", e.ID)
}

// OrderingError reports a timestamp or counter regression between two
// consecutive appends. Expected is the minimum acceptable value.
type OrderingError struct {
	Field    string
	Expected uint64
	Got      uint64
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("krec: %s regressed: expected >= %d, got %d", e.Field, e.Expected, e.Got)
}

// InvalidEndTimestampError reports a finalize timestamp earlier than the
// header's start timestamp or the last appended frame.
type InvalidEndTimestampError struct {
	Min uint64
	Got uint64
}

func (e *InvalidEndTimestampError) Error() string {
	return fmt.Sprintf("krec: end timestamp %d precedes required minimum %d", e.Got, e.Min)
}

// DecodeError reports corrupt or truncated bytes. Offset is the byte
// position within the buffer being decoded and Message names the message
// type, so a caller can resume manual recovery from the next boundary.
type DecodeError struct {
	Message string
	Offset  int64
	cause   error
}

func (e *DecodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("krec: decode %s at offset %d: %v", e.Message, e.Offset, e.cause)
	}
	return fmt.Sprintf("krec: decode %s at offset %d", e.Message, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.cause
}
