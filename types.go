// Package krec implements the KRec recording format for synchronized
// robot telemetry: a strongly-typed recording header plus an append-only
// sequence of per-timestep frames carrying actuator state/command pairs
// and optional inertial data.
//
// The package owns the message types, their wire codec, and the
// Recording aggregate with its cross-cutting invariants (actuator-ID
// referential integrity, timestamp ordering, finalize semantics).
// Durable storage lives behind the Sink interface; pkg/krecfile provides
// the on-disk container.
package krec

// Vec3 is a 3-axis sample. Plain value type, no optionality.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// IMUQuaternion is an orientation sample. Plain value type.
type IMUQuaternion struct {
	X float64
	Y float64
	Z float64
	W float64
}

// IMUValues groups one timestep's inertial readings. Every sub-field is
// independently optional; a frame carrying an IMUValues with all four
// sub-fields absent is rejected at append time.
type IMUValues struct {
	Accel      *Vec3
	Gyro       *Vec3
	Mag        *Vec3
	Quaternion *IMUQuaternion

	unknown []byte
}

func (v *IMUValues) isEmpty() bool {
	return v.Accel == nil && v.Gyro == nil && v.Mag == nil && v.Quaternion == nil
}

// ActuatorConfig is the static calibration row for one actuator.
// ActuatorID is the unique key every frame reference resolves against.
// The gain fields are tri-state: nil means "use the controller default",
// a pointer to zero means "disable this term". The two must never be
// conflated, which is why these are pointers and not value-plus-sentinel.
type ActuatorConfig struct {
	ActuatorID uint32
	Kp         *float64
	Kd         *float64
	Ki         *float64
	MaxTorque  *float64
	Name       *string

	unknown []byte
}

// ActuatorState is one actuator's observed telemetry for a single
// timestep. All readings besides the online flag are optional.
type ActuatorState struct {
	ActuatorID  uint32
	Online      bool
	Position    *float64
	Velocity    *float64
	Torque      *float64
	Temperature *float64
	Voltage     *float32
	Current     *float32

	unknown []byte
}

// ActuatorCommand is one commanded setpoint triple. All three setpoints
// are required; the wire decoder rejects a command missing any of them
// rather than zero-filling, and NewActuatorCommand takes all three so an
// unset setpoint cannot be expressed through the API.
type ActuatorCommand struct {
	ActuatorID uint32
	Position   float32
	Velocity   float32
	Torque     float32

	unknown []byte
}

// NewActuatorCommand builds a command with every setpoint explicit.
func NewActuatorCommand(actuatorID uint32, position, velocity, torque float32) ActuatorCommand {
	return ActuatorCommand{
		ActuatorID: actuatorID,
		Position:   position,
		Velocity:   velocity,
		Torque:     torque,
	}
}

// KRecFrame is one captured timestep. RealTimestamp and VideoTimestamp
// are independent clocks; VideoTimestamp zero means no aligned video.
// VideoFrameNumber and InferenceStep are non-decreasing counters.
type KRecFrame struct {
	RealTimestamp    uint64
	VideoTimestamp   uint64
	VideoFrameNumber uint64
	InferenceStep    uint64
	ActuatorStates   []ActuatorState
	ActuatorCommands []ActuatorCommand
	IMUValues        *IMUValues

	unknown []byte
}

// NewFrame builds a frame with its timing metadata. States, commands and
// IMU values are attached afterwards.
func NewFrame(realTimestamp, videoTimestamp, videoFrameNumber, inferenceStep uint64) *KRecFrame {
	return &KRecFrame{
		RealTimestamp:    realTimestamp,
		VideoTimestamp:   videoTimestamp,
		VideoFrameNumber: videoFrameNumber,
		InferenceStep:    inferenceStep,
	}
}

// AddActuatorState appends an observed state to the frame.
func (f *KRecFrame) AddActuatorState(s ActuatorState) {
	f.ActuatorStates = append(f.ActuatorStates, s)
}

// AddActuatorCommand appends a commanded setpoint to the frame.
func (f *KRecFrame) AddActuatorCommand(c ActuatorCommand) {
	f.ActuatorCommands = append(f.ActuatorCommands, c)
}

// SetIMUValues attaches inertial data to the frame. Passing nil clears it.
func (f *KRecFrame) SetIMUValues(imu *IMUValues) {
	f.IMUValues = imu
}

// clone returns a deep copy. Append stores clones so a frame committed
// to a Recording can never be mutated through the caller's pointer.
func (f *KRecFrame) clone() *KRecFrame {
	c := &KRecFrame{
		RealTimestamp:    f.RealTimestamp,
		VideoTimestamp:   f.VideoTimestamp,
		VideoFrameNumber: f.VideoFrameNumber,
		InferenceStep:    f.InferenceStep,
	}
	if len(f.ActuatorStates) > 0 {
		c.ActuatorStates = make([]ActuatorState, len(f.ActuatorStates))
		for i, s := range f.ActuatorStates {
			c.ActuatorStates[i] = s.clone()
		}
	}
	if len(f.ActuatorCommands) > 0 {
		c.ActuatorCommands = make([]ActuatorCommand, len(f.ActuatorCommands))
		for i, cmd := range f.ActuatorCommands {
			c.ActuatorCommands[i] = cmd.clone()
		}
	}
	if f.IMUValues != nil {
		imu := &IMUValues{unknown: cloneBytes(f.IMUValues.unknown)}
		if f.IMUValues.Accel != nil {
			v := *f.IMUValues.Accel
			imu.Accel = &v
		}
		if f.IMUValues.Gyro != nil {
			v := *f.IMUValues.Gyro
			imu.Gyro = &v
		}
		if f.IMUValues.Mag != nil {
			v := *f.IMUValues.Mag
			imu.Mag = &v
		}
		if f.IMUValues.Quaternion != nil {
			q := *f.IMUValues.Quaternion
			imu.Quaternion = &q
		}
		c.IMUValues = imu
	}
	c.unknown = cloneBytes(f.unknown)
	return c
}

func (s ActuatorState) clone() ActuatorState {
	c := s
	c.Position = cloneFloat64(s.Position)
	c.Velocity = cloneFloat64(s.Velocity)
	c.Torque = cloneFloat64(s.Torque)
	c.Temperature = cloneFloat64(s.Temperature)
	c.Voltage = cloneFloat32(s.Voltage)
	c.Current = cloneFloat32(s.Current)
	c.unknown = cloneBytes(s.unknown)
	return c
}

func (c ActuatorCommand) clone() ActuatorCommand {
	out := c
	out.unknown = cloneBytes(c.unknown)
	return out
}

func (a ActuatorConfig) clone() ActuatorConfig {
	c := a
	c.Kp = cloneFloat64(a.Kp)
	c.Kd = cloneFloat64(a.Kd)
	c.Ki = cloneFloat64(a.Ki)
	c.MaxTorque = cloneFloat64(a.MaxTorque)
	if a.Name != nil {
		n := *a.Name
		c.Name = &n
	}
	c.unknown = cloneBytes(a.unknown)
	return c
}

func cloneFloat64(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat32(p *float32) *float32 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
