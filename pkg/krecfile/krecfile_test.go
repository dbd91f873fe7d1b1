package krecfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/unijord/krec"
)

func testHeader(t *testing.T) *krec.KRecHeader {
	t.Helper()
	header, err := krec.NewHeader("", "pick and place", "gpr-2", "SN-0031", 1000, []krec.ActuatorConfig{
		{ActuatorID: 1, Kp: proto.Float64(40), Name: proto.String("hip")},
		{ActuatorID: 2, Kp: proto.Float64(35), Name: proto.String("knee")},
	})
	require.NoError(t, err)
	return header
}

func testFrame(realTS uint64) *krec.KRecFrame {
	frame := krec.NewFrame(realTS, realTS-10, realTS-1000, realTS-1000)
	frame.AddActuatorState(krec.ActuatorState{ActuatorID: 1, Online: true, Position: proto.Float64(float64(realTS) / 100)})
	frame.AddActuatorCommand(krec.NewActuatorCommand(1, 30, 0.5, 0))
	return frame
}

// writeRecording records n frames starting at ts 1010 and finalizes at
// 1010+n unless finalize is false.
func writeRecording(t *testing.T, path string, n int, finalize bool) {
	t.Helper()
	header := testHeader(t)
	w, err := Create(path, header)
	require.NoError(t, err)

	rec, err := krec.Open(header, krec.WithSink(w))
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, rec.Append(testFrame(uint64(1010+i))))
	}
	if finalize {
		require.NoError(t, rec.Finalize(uint64(1010+n)))
	}
	require.NoError(t, w.Close())
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")

	header := testHeader(t)
	w, err := Create(path, header)
	require.NoError(t, err)
	rec, err := krec.Open(header, krec.WithSink(w))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, rec.Append(testFrame(uint64(1010+i))))
	}
	require.NoError(t, rec.Finalize(1100))
	require.NoError(t, w.Close())

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "pick and place", r.Header().Task)
	assert.Equal(t, "gpr-2", r.Header().RobotPlatform)
	assert.Len(t, r.Header().ActuatorConfigs, 2)
	assert.Equal(t, uint64(10), r.FrameCount())
	assert.True(t, r.Finalized())

	frames := r.Frames()
	var count int
	for {
		frame, _, err := frames.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, rec.Frames()[count], frame)
		count++
	}
	assert.Equal(t, 10, count)

	end, ok := frames.End()
	require.True(t, ok)
	assert.Equal(t, uint64(1100), end)
}

func TestReaderIndependentWalkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	writeRecording(t, path, 5, true)

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()

	a := r.Frames()
	b := r.Frames()
	frameA, _, err := a.Next()
	require.NoError(t, err)
	// b has not moved
	frameB, _, err := b.Next()
	require.NoError(t, err)
	assert.Equal(t, frameA, frameB)

	a.Reset()
	again, _, err := a.Next()
	require.NoError(t, err)
	assert.Equal(t, frameA, again)
}

func TestUnfinalizedFileIsReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	writeRecording(t, path, 3, false)

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()
	assert.False(t, r.Finalized())

	frames := r.Frames()
	var count int
	for {
		_, _, err := frames.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 3, count)
	_, ok := frames.End()
	assert.False(t, ok)
}

func TestWriterRejectsAppendAfterFinalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	w, err := Create(path, testHeader(t))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AppendFrame(krec.MarshalFrame(testFrame(1010))))
	require.NoError(t, w.Finalize(2000))

	assert.ErrorIs(t, w.AppendFrame(krec.MarshalFrame(testFrame(1011))), ErrFinalized)
	assert.ErrorIs(t, w.Finalize(2001), ErrFinalized)
}

func TestWriterRejectsAppendAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	w, err := Create(path, testHeader(t))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.AppendFrame(krec.MarshalFrame(testFrame(1010))), ErrClosed)
	assert.NoError(t, w.Close(), "close is idempotent")
}

func TestOpenRejectsNotAKrecFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.krec")
	junk := make([]byte, 128)
	for i := range junk {
		junk[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, junk, 0644))

	_, err := OpenFile(path)
	assert.ErrorIs(t, err, ErrInvalidCRC)
}

func TestOpenRejectsWrongMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	writeRecording(t, path, 1, true)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0644))

	// a magic flip also breaks the file header crc
	_, err = OpenFile(path)
	assert.ErrorIs(t, err, ErrInvalidCRC)
}

func TestOpenRejectsTinyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	require.NoError(t, os.WriteFile(path, []byte("KREC"), 0644))

	_, err := OpenFile(path)
	assert.ErrorIs(t, err, ErrTruncatedRecord)
}

func TestCorruptFrameSurfacesOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	writeRecording(t, path, 3, true)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// the last byte of the file is inside the end record's payload,
	// which its crc covers
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0644))

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()

	frames := r.Frames()
	var corrupt error
	for {
		_, off, err := frames.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			corrupt = err
			assert.Greater(t, off, int64(fileHeaderSize))
			break
		}
	}
	require.Error(t, corrupt)
	assert.ErrorIs(t, corrupt, ErrInvalidCRC)
}

func TestTruncatedFileSurfacesTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	writeRecording(t, path, 3, false)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// cut into the last frame record
	require.NoError(t, os.WriteFile(path, data[:len(data)-5], 0644))

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()

	frames := r.Frames()
	var got error
	for {
		_, _, err := frames.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			got = err
			break
		}
	}
	assert.ErrorIs(t, got, ErrTruncatedRecord)
}

func TestSaveLoad(t *testing.T) {
	rec, err := krec.Open(testHeader(t))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, rec.Append(testFrame(uint64(1010+i))))
	}
	require.NoError(t, rec.Finalize(1100))

	path := filepath.Join(t.TempDir(), "session.krec")
	require.NoError(t, Save(path, rec))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, rec.Header().UUID, loaded.Header().UUID)
	assert.Equal(t, rec.Frames(), loaded.Frames())
	assert.True(t, loaded.Finalized())

	end, ok := loaded.Header().EndTimestamp()
	require.True(t, ok)
	assert.Equal(t, uint64(1100), end)
}

func TestLoadUnfinalizedStaysOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	writeRecording(t, path, 4, false)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.False(t, loaded.Finalized())
	assert.Equal(t, 4, loaded.Len())

	// an unfinalized recording can be continued
	require.NoError(t, loaded.Append(testFrame(2000)))
	require.NoError(t, loaded.Finalize(2100))
}

// Load replays frames through the aggregate, so a file whose frames were
// written out of order by a buggy or malicious writer is rejected even
// though every crc checks out.
func TestLoadRevalidatesOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	w, err := Create(path, testHeader(t))
	require.NoError(t, err)
	require.NoError(t, w.AppendFrame(krec.MarshalFrame(testFrame(2000))))
	require.NoError(t, w.AppendFrame(krec.MarshalFrame(testFrame(1500))))
	require.NoError(t, w.Close())

	_, err = Load(path)
	require.Error(t, err)
	var ord *krec.OrderingError
	require.ErrorAs(t, err, &ord)
	assert.Equal(t, "real_timestamp", ord.Field)
}

func TestLoadRevalidatesRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	w, err := Create(path, testHeader(t))
	require.NoError(t, err)
	rogue := krec.NewFrame(2000, 0, 0, 0)
	rogue.AddActuatorState(krec.ActuatorState{ActuatorID: 99})
	require.NoError(t, w.AppendFrame(krec.MarshalFrame(rogue)))
	require.NoError(t, w.Close())

	_, err = Load(path)
	require.Error(t, err)
	var unknown *krec.UnknownActuatorError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, uint32(99), unknown.ID)
}

func TestSyncOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.krec")
	w, err := Create(path, testHeader(t), WithSyncOnWrite(true))
	require.NoError(t, err)
	require.NoError(t, w.AppendFrame(krec.MarshalFrame(testFrame(1010))))

	// synced data is visible before Close
	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, stat.Size(), int64(fileHeaderSize))
	require.NoError(t, w.Close())
}
