package krec

import (
	"errors"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire encoding for every KRec message type.
//
// The layout is protobuf wire format with fixed field numbers, so
// recordings interoperate with any protobuf toolchain that carries the
// same schema. Optional scalars encode presence by field emission: an
// absent field writes nothing, a present field writes its value even
// when that value is zero. Unrecognized field numbers are skipped
// structurally, retained verbatim, and re-emitted on encode so a newer
// writer's extensions survive a rewrite by an older reader.
//
// Field numbers:
//
//	Vec3            x=1 y=2 z=3 (double)
//	IMUQuaternion   x=1 y=2 z=3 w=4 (double)
//	IMUValues       accel=1 gyro=2 mag=3 quaternion=4
//	ActuatorConfig  actuator_id=1 kp=2 kd=3 ki=4 max_torque=5 name=6
//	ActuatorState   actuator_id=1 online=2 position=3 velocity=4
//	                torque=5 temperature=6 (double) voltage=7 current=8 (float)
//	ActuatorCommand actuator_id=1 position=2 velocity=3 torque=4 (float)
//	KRecFrame       real_timestamp=1 video_timestamp=2
//	                video_frame_number=3 inference_step=4
//	                actuator_states=5 actuator_commands=6 imu_values=7
//	KRecHeader      uuid=1 task=2 robot_platform=3 robot_serial=4
//	                start_timestamp=5 end_timestamp=6 actuator_configs=7

var errMissingSetpoint = errors.New("command is missing a required setpoint")

// MarshalVec3 encodes v.
func MarshalVec3(v Vec3) []byte {
	return appendVec3(nil, v)
}

func appendVec3(b []byte, v Vec3) []byte {
	b = appendDouble(b, 1, v.X)
	b = appendDouble(b, 2, v.Y)
	b = appendDouble(b, 3, v.Z)
	return b
}

// UnmarshalVec3 decodes a Vec3. Unknown fields are ignored: Vec3 is a
// plain value type and schema growth happens at the IMUValues level.
func UnmarshalVec3(data []byte) (Vec3, error) {
	var v Vec3
	for off := 0; off < len(data); {
		num, typ, n := protowire.ConsumeTag(data[off:])
		if n < 0 {
			return Vec3{}, decodeErr("Vec3", off, n)
		}
		off += n
		if typ == protowire.Fixed64Type && num >= 1 && num <= 3 {
			bits, m := protowire.ConsumeFixed64(data[off:])
			if m < 0 {
				return Vec3{}, decodeErr("Vec3", off, m)
			}
			switch num {
			case 1:
				v.X = math.Float64frombits(bits)
			case 2:
				v.Y = math.Float64frombits(bits)
			case 3:
				v.Z = math.Float64frombits(bits)
			}
			off += m
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, data[off:])
		if m < 0 {
			return Vec3{}, decodeErr("Vec3", off, m)
		}
		off += m
	}
	return v, nil
}

// MarshalIMUQuaternion encodes q.
func MarshalIMUQuaternion(q IMUQuaternion) []byte {
	return appendQuaternion(nil, q)
}

func appendQuaternion(b []byte, q IMUQuaternion) []byte {
	b = appendDouble(b, 1, q.X)
	b = appendDouble(b, 2, q.Y)
	b = appendDouble(b, 3, q.Z)
	b = appendDouble(b, 4, q.W)
	return b
}

// UnmarshalIMUQuaternion decodes an IMUQuaternion.
func UnmarshalIMUQuaternion(data []byte) (IMUQuaternion, error) {
	var q IMUQuaternion
	for off := 0; off < len(data); {
		num, typ, n := protowire.ConsumeTag(data[off:])
		if n < 0 {
			return IMUQuaternion{}, decodeErr("IMUQuaternion", off, n)
		}
		off += n
		if typ == protowire.Fixed64Type && num >= 1 && num <= 4 {
			bits, m := protowire.ConsumeFixed64(data[off:])
			if m < 0 {
				return IMUQuaternion{}, decodeErr("IMUQuaternion", off, m)
			}
			switch num {
			case 1:
				q.X = math.Float64frombits(bits)
			case 2:
				q.Y = math.Float64frombits(bits)
			case 3:
				q.Z = math.Float64frombits(bits)
			case 4:
				q.W = math.Float64frombits(bits)
			}
			off += m
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, data[off:])
		if m < 0 {
			return IMUQuaternion{}, decodeErr("IMUQuaternion", off, m)
		}
		off += m
	}
	return q, nil
}

// MarshalIMUValues encodes imu.
func MarshalIMUValues(imu *IMUValues) []byte {
	return appendIMUValues(nil, imu)
}

func appendIMUValues(b []byte, imu *IMUValues) []byte {
	if imu.Accel != nil {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, appendVec3(nil, *imu.Accel))
	}
	if imu.Gyro != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, appendVec3(nil, *imu.Gyro))
	}
	if imu.Mag != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, appendVec3(nil, *imu.Mag))
	}
	if imu.Quaternion != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, appendQuaternion(nil, *imu.Quaternion))
	}
	b = append(b, imu.unknown...)
	return b
}

// UnmarshalIMUValues decodes an IMUValues.
func UnmarshalIMUValues(data []byte) (*IMUValues, error) {
	imu := &IMUValues{}
	for off := 0; off < len(data); {
		tagStart := off
		num, typ, n := protowire.ConsumeTag(data[off:])
		if n < 0 {
			return nil, decodeErr("IMUValues", off, n)
		}
		off += n
		if typ == protowire.BytesType && num >= 1 && num <= 4 {
			payload, m := protowire.ConsumeBytes(data[off:])
			if m < 0 {
				return nil, decodeErr("IMUValues", off, m)
			}
			switch num {
			case 1, 2, 3:
				vec, err := UnmarshalVec3(payload)
				if err != nil {
					return nil, offsetErr(err, int64(off+m-len(payload)))
				}
				switch num {
				case 1:
					imu.Accel = &vec
				case 2:
					imu.Gyro = &vec
				case 3:
					imu.Mag = &vec
				}
			case 4:
				quat, err := UnmarshalIMUQuaternion(payload)
				if err != nil {
					return nil, offsetErr(err, int64(off+m-len(payload)))
				}
				imu.Quaternion = &quat
			}
			off += m
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, data[off:])
		if m < 0 {
			return nil, decodeErr("IMUValues", off, m)
		}
		off += m
		imu.unknown = append(imu.unknown, data[tagStart:off]...)
	}
	return imu, nil
}

// MarshalActuatorConfig encodes c.
func MarshalActuatorConfig(c ActuatorConfig) []byte {
	return appendActuatorConfig(nil, c)
}

func appendActuatorConfig(b []byte, c ActuatorConfig) []byte {
	if c.ActuatorID != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(c.ActuatorID))
	}
	b = appendOptDouble(b, 2, c.Kp)
	b = appendOptDouble(b, 3, c.Kd)
	b = appendOptDouble(b, 4, c.Ki)
	b = appendOptDouble(b, 5, c.MaxTorque)
	if c.Name != nil {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendString(b, *c.Name)
	}
	b = append(b, c.unknown...)
	return b
}

// UnmarshalActuatorConfig decodes an ActuatorConfig.
func UnmarshalActuatorConfig(data []byte) (ActuatorConfig, error) {
	var c ActuatorConfig
	for off := 0; off < len(data); {
		tagStart := off
		num, typ, n := protowire.ConsumeTag(data[off:])
		if n < 0 {
			return ActuatorConfig{}, decodeErr("ActuatorConfig", off, n)
		}
		off += n
		switch {
		case num == 1 && typ == protowire.VarintType:
			id, m := protowire.ConsumeVarint(data[off:])
			if m < 0 {
				return ActuatorConfig{}, decodeErr("ActuatorConfig", off, m)
			}
			c.ActuatorID = uint32(id)
			off += m
		case num >= 2 && num <= 5 && typ == protowire.Fixed64Type:
			bits, m := protowire.ConsumeFixed64(data[off:])
			if m < 0 {
				return ActuatorConfig{}, decodeErr("ActuatorConfig", off, m)
			}
			val := math.Float64frombits(bits)
			switch num {
			case 2:
				c.Kp = &val
			case 3:
				c.Kd = &val
			case 4:
				c.Ki = &val
			case 5:
				c.MaxTorque = &val
			}
			off += m
		case num == 6 && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data[off:])
			if m < 0 {
				return ActuatorConfig{}, decodeErr("ActuatorConfig", off, m)
			}
			c.Name = &s
			off += m
		default:
			m := protowire.ConsumeFieldValue(num, typ, data[off:])
			if m < 0 {
				return ActuatorConfig{}, decodeErr("ActuatorConfig", off, m)
			}
			off += m
			c.unknown = append(c.unknown, data[tagStart:off]...)
		}
	}
	return c, nil
}

// MarshalActuatorState encodes s.
func MarshalActuatorState(s ActuatorState) []byte {
	return appendActuatorState(nil, s)
}

func appendActuatorState(b []byte, s ActuatorState) []byte {
	if s.ActuatorID != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.ActuatorID))
	}
	if s.Online {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	b = appendOptDouble(b, 3, s.Position)
	b = appendOptDouble(b, 4, s.Velocity)
	b = appendOptDouble(b, 5, s.Torque)
	b = appendOptDouble(b, 6, s.Temperature)
	b = appendOptFloat(b, 7, s.Voltage)
	b = appendOptFloat(b, 8, s.Current)
	b = append(b, s.unknown...)
	return b
}

// UnmarshalActuatorState decodes an ActuatorState.
func UnmarshalActuatorState(data []byte) (ActuatorState, error) {
	var s ActuatorState
	for off := 0; off < len(data); {
		tagStart := off
		num, typ, n := protowire.ConsumeTag(data[off:])
		if n < 0 {
			return ActuatorState{}, decodeErr("ActuatorState", off, n)
		}
		off += n
		switch {
		case num == 1 && typ == protowire.VarintType:
			id, m := protowire.ConsumeVarint(data[off:])
			if m < 0 {
				return ActuatorState{}, decodeErr("ActuatorState", off, m)
			}
			s.ActuatorID = uint32(id)
			off += m
		case num == 2 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data[off:])
			if m < 0 {
				return ActuatorState{}, decodeErr("ActuatorState", off, m)
			}
			s.Online = v != 0
			off += m
		case num >= 3 && num <= 6 && typ == protowire.Fixed64Type:
			bits, m := protowire.ConsumeFixed64(data[off:])
			if m < 0 {
				return ActuatorState{}, decodeErr("ActuatorState", off, m)
			}
			val := math.Float64frombits(bits)
			switch num {
			case 3:
				s.Position = &val
			case 4:
				s.Velocity = &val
			case 5:
				s.Torque = &val
			case 6:
				s.Temperature = &val
			}
			off += m
		case (num == 7 || num == 8) && typ == protowire.Fixed32Type:
			bits, m := protowire.ConsumeFixed32(data[off:])
			if m < 0 {
				return ActuatorState{}, decodeErr("ActuatorState", off, m)
			}
			val := math.Float32frombits(bits)
			if num == 7 {
				s.Voltage = &val
			} else {
				s.Current = &val
			}
			off += m
		default:
			m := protowire.ConsumeFieldValue(num, typ, data[off:])
			if m < 0 {
				return ActuatorState{}, decodeErr("ActuatorState", off, m)
			}
			off += m
			s.unknown = append(s.unknown, data[tagStart:off]...)
		}
	}
	return s, nil
}

// MarshalActuatorCommand encodes c. All three setpoints are written
// unconditionally, including zeros, so a decoder can tell an explicit
// zero setpoint from a truncated command.
func MarshalActuatorCommand(c ActuatorCommand) []byte {
	return appendActuatorCommand(nil, c)
}

func appendActuatorCommand(b []byte, c ActuatorCommand) []byte {
	if c.ActuatorID != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(c.ActuatorID))
	}
	b = appendFloat(b, 2, c.Position)
	b = appendFloat(b, 3, c.Velocity)
	b = appendFloat(b, 4, c.Torque)
	b = append(b, c.unknown...)
	return b
}

// UnmarshalActuatorCommand decodes an ActuatorCommand. A command missing
// any of position, velocity or torque is rejected rather than defaulted.
func UnmarshalActuatorCommand(data []byte) (ActuatorCommand, error) {
	var c ActuatorCommand
	var present uint8
	for off := 0; off < len(data); {
		tagStart := off
		num, typ, n := protowire.ConsumeTag(data[off:])
		if n < 0 {
			return ActuatorCommand{}, decodeErr("ActuatorCommand", off, n)
		}
		off += n
		switch {
		case num == 1 && typ == protowire.VarintType:
			id, m := protowire.ConsumeVarint(data[off:])
			if m < 0 {
				return ActuatorCommand{}, decodeErr("ActuatorCommand", off, m)
			}
			c.ActuatorID = uint32(id)
			off += m
		case num >= 2 && num <= 4 && typ == protowire.Fixed32Type:
			bits, m := protowire.ConsumeFixed32(data[off:])
			if m < 0 {
				return ActuatorCommand{}, decodeErr("ActuatorCommand", off, m)
			}
			val := math.Float32frombits(bits)
			switch num {
			case 2:
				c.Position = val
			case 3:
				c.Velocity = val
			case 4:
				c.Torque = val
			}
			present |= 1 << (num - 2)
			off += m
		default:
			m := protowire.ConsumeFieldValue(num, typ, data[off:])
			if m < 0 {
				return ActuatorCommand{}, decodeErr("ActuatorCommand", off, m)
			}
			off += m
			c.unknown = append(c.unknown, data[tagStart:off]...)
		}
	}
	if present != 0b111 {
		return ActuatorCommand{}, &DecodeError{Message: "ActuatorCommand", Offset: int64(len(data)), cause: errMissingSetpoint}
	}
	return c, nil
}

// MarshalFrame encodes f.
func MarshalFrame(f *KRecFrame) []byte {
	return appendFrame(nil, f)
}

func appendFrame(b []byte, f *KRecFrame) []byte {
	b = appendUint64(b, 1, f.RealTimestamp)
	b = appendUint64(b, 2, f.VideoTimestamp)
	b = appendUint64(b, 3, f.VideoFrameNumber)
	b = appendUint64(b, 4, f.InferenceStep)
	for _, s := range f.ActuatorStates {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, appendActuatorState(nil, s))
	}
	for _, c := range f.ActuatorCommands {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, appendActuatorCommand(nil, c))
	}
	if f.IMUValues != nil {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, appendIMUValues(nil, f.IMUValues))
	}
	b = append(b, f.unknown...)
	return b
}

// UnmarshalFrame decodes a KRecFrame.
func UnmarshalFrame(data []byte) (*KRecFrame, error) {
	f := &KRecFrame{}
	for off := 0; off < len(data); {
		tagStart := off
		num, typ, n := protowire.ConsumeTag(data[off:])
		if n < 0 {
			return nil, decodeErr("KRecFrame", off, n)
		}
		off += n
		switch {
		case num >= 1 && num <= 4 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data[off:])
			if m < 0 {
				return nil, decodeErr("KRecFrame", off, m)
			}
			switch num {
			case 1:
				f.RealTimestamp = v
			case 2:
				f.VideoTimestamp = v
			case 3:
				f.VideoFrameNumber = v
			case 4:
				f.InferenceStep = v
			}
			off += m
		case num >= 5 && num <= 7 && typ == protowire.BytesType:
			payload, m := protowire.ConsumeBytes(data[off:])
			if m < 0 {
				return nil, decodeErr("KRecFrame", off, m)
			}
			payloadStart := int64(off + m - len(payload))
			switch num {
			case 5:
				s, err := UnmarshalActuatorState(payload)
				if err != nil {
					return nil, offsetErr(err, payloadStart)
				}
				f.ActuatorStates = append(f.ActuatorStates, s)
			case 6:
				c, err := UnmarshalActuatorCommand(payload)
				if err != nil {
					return nil, offsetErr(err, payloadStart)
				}
				f.ActuatorCommands = append(f.ActuatorCommands, c)
			case 7:
				imu, err := UnmarshalIMUValues(payload)
				if err != nil {
					return nil, offsetErr(err, payloadStart)
				}
				f.IMUValues = imu
			}
			off += m
		default:
			m := protowire.ConsumeFieldValue(num, typ, data[off:])
			if m < 0 {
				return nil, decodeErr("KRecFrame", off, m)
			}
			off += m
			f.unknown = append(f.unknown, data[tagStart:off]...)
		}
	}
	return f, nil
}

// MarshalHeader encodes h. The end timestamp field (6) is accepted on
// decode for interoperability but never emitted here: a header is
// written before any frame exists, and the container's end record is
// authoritative for the finalize timestamp.
func MarshalHeader(h *KRecHeader) []byte {
	return appendHeader(nil, h)
}

func appendHeader(b []byte, h *KRecHeader) []byte {
	b = appendString(b, 1, h.UUID)
	b = appendString(b, 2, h.Task)
	b = appendString(b, 3, h.RobotPlatform)
	b = appendString(b, 4, h.RobotSerial)
	b = appendUint64(b, 5, h.StartTimestamp)
	for _, c := range h.ActuatorConfigs {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, appendActuatorConfig(nil, c))
	}
	b = append(b, h.unknown...)
	return b
}

// UnmarshalHeader decodes a KRecHeader.
func UnmarshalHeader(data []byte) (*KRecHeader, error) {
	h := &KRecHeader{}
	for off := 0; off < len(data); {
		tagStart := off
		num, typ, n := protowire.ConsumeTag(data[off:])
		if n < 0 {
			return nil, decodeErr("KRecHeader", off, n)
		}
		off += n
		switch {
		case num >= 1 && num <= 4 && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data[off:])
			if m < 0 {
				return nil, decodeErr("KRecHeader", off, m)
			}
			switch num {
			case 1:
				h.UUID = s
			case 2:
				h.Task = s
			case 3:
				h.RobotPlatform = s
			case 4:
				h.RobotSerial = s
			}
			off += m
		case num == 5 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data[off:])
			if m < 0 {
				return nil, decodeErr("KRecHeader", off, m)
			}
			h.StartTimestamp = v
			off += m
		case num == 6 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data[off:])
			if m < 0 {
				return nil, decodeErr("KRecHeader", off, m)
			}
			h.endTimestamp = &v
			off += m
		case num == 7 && typ == protowire.BytesType:
			payload, m := protowire.ConsumeBytes(data[off:])
			if m < 0 {
				return nil, decodeErr("KRecHeader", off, m)
			}
			cfg, err := UnmarshalActuatorConfig(payload)
			if err != nil {
				return nil, offsetErr(err, int64(off+m-len(payload)))
			}
			h.ActuatorConfigs = append(h.ActuatorConfigs, cfg)
			off += m
		default:
			m := protowire.ConsumeFieldValue(num, typ, data[off:])
			if m < 0 {
				return nil, decodeErr("KRecHeader", off, m)
			}
			off += m
			h.unknown = append(h.unknown, data[tagStart:off]...)
		}
	}
	return h, nil
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendOptDouble(b []byte, num protowire.Number, p *float64) []byte {
	if p == nil {
		return b
	}
	return appendDouble(b, num, *p)
}

func appendOptFloat(b []byte, num protowire.Number, p *float32) []byte {
	if p == nil {
		return b
	}
	return appendFloat(b, num, *p)
}

func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func decodeErr(message string, off int, n int) *DecodeError {
	return &DecodeError{Message: message, Offset: int64(off), cause: protowire.ParseError(n)}
}

// offsetErr rebases a nested message's DecodeError offset onto the
// enclosing buffer so the reported position is absolute.
func offsetErr(err error, base int64) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return &DecodeError{Message: de.Message, Offset: de.Offset + base, cause: de.cause}
	}
	return err
}
