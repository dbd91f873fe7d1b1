package krec

import (
	"github.com/google/uuid"
)

// KRecHeader identifies a recording and carries the actuator
// configuration table every frame reference resolves against. A header
// is mutable until it is committed to a Recording by Open; after the
// first frame is appended it must be treated as immutable.
type KRecHeader struct {
	UUID            string
	Task            string
	RobotPlatform   string
	RobotSerial     string
	StartTimestamp  uint64
	ActuatorConfigs []ActuatorConfig

	// set only by Recording.Finalize, never during construction. Kept
	// unexported so a zero end timestamp can never be confused with
	// "not yet finalized".
	endTimestamp *uint64

	unknown []byte
}

// NewHeader validates and builds a recording header. An empty id gets a
// fresh UUID assigned; the UUID is never regenerated afterwards.
// startTimestamp must be nonzero and the actuator IDs in configs must be
// unique.
func NewHeader(id, task, robotPlatform, robotSerial string, startTimestamp uint64, configs []ActuatorConfig) (*KRecHeader, error) {
	if startTimestamp == 0 {
		return nil, ErrStartTimestampUnset
	}
	if _, err := newRegistry(configs); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	h := &KRecHeader{
		UUID:           id,
		Task:           task,
		RobotPlatform:  robotPlatform,
		RobotSerial:    robotSerial,
		StartTimestamp: startTimestamp,
	}
	h.ActuatorConfigs = make([]ActuatorConfig, len(configs))
	for i, c := range configs {
		h.ActuatorConfigs[i] = c.clone()
	}
	return h, nil
}

// EndTimestamp returns the finalize timestamp. ok is false until the
// recording owning this header has been finalized.
func (h *KRecHeader) EndTimestamp() (end uint64, ok bool) {
	if h.endTimestamp == nil {
		return 0, false
	}
	return *h.endTimestamp, true
}

// Registry is an immutable snapshot of the header's actuator
// configuration table, keyed by actuator ID. Frames reference configs by
// ID value only; the registry is the lookup that makes that logical
// foreign key enforceable.
type Registry struct {
	configs map[uint32]ActuatorConfig
	ids     []uint32
}

func newRegistry(configs []ActuatorConfig) (*Registry, error) {
	r := &Registry{
		configs: make(map[uint32]ActuatorConfig, len(configs)),
		ids:     make([]uint32, 0, len(configs)),
	}
	for _, c := range configs {
		if _, dup := r.configs[c.ActuatorID]; dup {
			return nil, &DuplicateActuatorConfigError{ID: c.ActuatorID}
		}
		r.configs[c.ActuatorID] = c.clone()
		r.ids = append(r.ids, c.ActuatorID)
	}
	return r, nil
}

// Registry builds a registry snapshot from the header's current
// configuration table.
func (h *KRecHeader) Registry() (*Registry, error) {
	return newRegistry(h.ActuatorConfigs)
}

// Lookup returns the config for an actuator ID.
func (r *Registry) Lookup(id uint32) (ActuatorConfig, bool) {
	c, ok := r.configs[id]
	return c, ok
}

func (r *Registry) has(id uint32) bool {
	_, ok := r.configs[id]
	return ok
}

// Len returns the number of registered actuators.
func (r *Registry) Len() int {
	return len(r.ids)
}

// IDs returns the actuator IDs in header table order.
func (r *Registry) IDs() []uint32 {
	out := make([]uint32, len(r.ids))
	copy(out, r.ids)
	return out
}
