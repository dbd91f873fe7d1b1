package krec

// ValidateFrame checks a frame against the registry. Checks run in a
// fixed order and stop at the first failure:
//
//  1. every referenced actuator ID exists in the registry
//  2. actuator IDs are unique within the state list and, separately,
//     within the command list
//  3. an attached IMUValues carries at least one sub-field
//
// A frame that fails validation is never committed to a recording.
func (r *Registry) ValidateFrame(f *KRecFrame) error {
	for _, s := range f.ActuatorStates {
		if !r.has(s.ActuatorID) {
			return &UnknownActuatorError{ID: s.ActuatorID}
		}
	}
	for _, c := range f.ActuatorCommands {
		if !r.has(c.ActuatorID) {
			return &UnknownActuatorError{ID: c.ActuatorID}
		}
	}

	seen := make(map[uint32]struct{}, len(f.ActuatorStates))
	for _, s := range f.ActuatorStates {
		if _, dup := seen[s.ActuatorID]; dup {
			return &DuplicateActuatorError{ID: s.ActuatorID}
		}
		seen[s.ActuatorID] = struct{}{}
	}
	clear(seen)
	for _, c := range f.ActuatorCommands {
		if _, dup := seen[c.ActuatorID]; dup {
			return &DuplicateActuatorError{ID: c.ActuatorID}
		}
		seen[c.ActuatorID] = struct{}{}
	}

	if f.IMUValues != nil && f.IMUValues.isEmpty() {
		return ErrEmptyIMU
	}
	return nil
}
