package krec

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestNewHeaderAssignsUUID(t *testing.T) {
	header, err := NewHeader("", "locomotion", "gpr-2", "SN-0031", 1700000000, nil)
	require.NoError(t, err)
	require.NotEmpty(t, header.UUID)
	_, err = uuid.Parse(header.UUID)
	assert.NoError(t, err)
}

func TestNewHeaderKeepsGivenUUID(t *testing.T) {
	id := uuid.NewString()
	header, err := NewHeader(id, "locomotion", "gpr-2", "SN-0031", 1700000000, nil)
	require.NoError(t, err)
	assert.Equal(t, id, header.UUID)
}

func TestNewHeaderRejectsZeroStart(t *testing.T) {
	_, err := NewHeader("", "locomotion", "gpr-2", "SN-0031", 0, nil)
	assert.ErrorIs(t, err, ErrStartTimestampUnset)
}

func TestNewHeaderRejectsDuplicateConfig(t *testing.T) {
	_, err := NewHeader("", "locomotion", "gpr-2", "SN-0031", 1700000000, []ActuatorConfig{
		{ActuatorID: 4, Name: proto.String("hip")},
		{ActuatorID: 4, Name: proto.String("knee")},
	})
	require.Error(t, err)
	var dup *DuplicateActuatorConfigError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, uint32(4), dup.ID)
}

func TestNewHeaderClonesConfigs(t *testing.T) {
	configs := []ActuatorConfig{{ActuatorID: 1, Kp: proto.Float64(40)}}
	header, err := NewHeader("", "locomotion", "gpr-2", "SN-0031", 1700000000, configs)
	require.NoError(t, err)

	*configs[0].Kp = 99
	assert.Equal(t, 40.0, *header.ActuatorConfigs[0].Kp)
}

func TestHeaderEndTimestampUnsetUntilFinalize(t *testing.T) {
	header, err := NewHeader("", "locomotion", "gpr-2", "SN-0031", 1700000000, nil)
	require.NoError(t, err)
	_, ok := header.EndTimestamp()
	assert.False(t, ok)
}

func TestRegistryLookup(t *testing.T) {
	header, err := NewHeader("", "locomotion", "gpr-2", "SN-0031", 1700000000, []ActuatorConfig{
		{ActuatorID: 2, Name: proto.String("hip")},
		{ActuatorID: 1, Name: proto.String("knee")},
		{ActuatorID: 7},
	})
	require.NoError(t, err)
	registry, err := header.Registry()
	require.NoError(t, err)

	assert.Equal(t, 3, registry.Len())
	assert.Equal(t, []uint32{2, 1, 7}, registry.IDs(), "table order, not sorted")

	cfg, ok := registry.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "knee", *cfg.Name)

	_, ok = registry.Lookup(42)
	assert.False(t, ok)
}
